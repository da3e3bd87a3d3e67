// Package redis connects billingkit to a Redis server through the go-redis
// client: Connect with startup retries and a readiness probe. The webhook
// event index (subscription.RedisEventIndex) runs on the client this
// package hands out.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	index := subscription.NewRedisEventIndex(client)
//
// Register the readiness probe alongside the HTTP server:
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil {
//	    // redis is not healthy
//	}
//
// # Errors
//
// Sentinel errors (ErrNotReady, ErrFailedToParseConnString) wrap the
// underlying go-redis errors with errors.Join so callers can test with
// errors.Is and still see the cause.
package redis
