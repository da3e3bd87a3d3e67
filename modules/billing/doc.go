// Package billing exposes the subscription engine over HTTP as a mountable
// chi router.
//
// The module owns request decoding, actor resolution, webhook signature
// verification, and the mapping from domain errors to HTTP statuses. All
// business behavior lives in pkg/reconcile.
//
//	cfg, err := billing.LoadConfig()
//	log := billing.NewLogger(cfg)
//
//	store, closeStore, err := billing.NewStore(ctx)
//	defer closeStore()
//	index, closeIndex, err := billing.NewEventIndex(ctx)
//	defer closeIndex()
//
//	prov, err := billing.NewProvider(cfg)
//	verifier, err := billing.NewVerifier(cfg)
//	coordinator, err := billing.NewCoordinator(cfg, store)
//
//	engine := reconcile.New(registry, prov, store,
//		reconcile.WithEventIndex(index),
//		reconcile.WithRedirect(coordinator),
//		reconcile.WithLogger(log),
//	)
//	svc := billing.New(cfg, engine, verifier, resolveActor,
//		billing.WithCoordinator(coordinator),
//		billing.WithLogger(log),
//	)
//
//	r := chi.NewRouter()
//	r.Mount("/billing", svc.Handle())
//	srv := httpserver.New(httpserver.WithLogger(log))
//	err = srv.Run(ctx, r)
package billing
