package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sign creates a signature header for the payload at the given time.
// Signature format: HMAC-SHA256(secret, "<timestamp>.<payload>"), presented
// as "t=<timestamp>,v1=<hex>". Timestamp binding prevents replay.
func Sign(secret string, payload []byte, at time.Time) (string, error) {
	if secret == "" {
		return "", errors.Join(ErrInvalidConfiguration, errors.New("secret is required"))
	}
	if len(payload) == 0 {
		return "", errors.Join(ErrInvalidConfiguration, errors.New("payload cannot be empty"))
	}

	timestamp := at.Unix()
	mac := computeSignature(secret, timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac)), nil
}

func computeSignature(secret string, timestamp int64, payload []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", timestamp)
	h.Write(payload)
	return h.Sum(nil)
}

// parseSignatureHeader splits "t=...,v1=...,v1=..." into the timestamp and
// the candidate signatures. Multiple v1 entries appear while signing secrets
// roll; unknown schemes are skipped for forward compatibility.
func parseSignatureHeader(header string) (timestamp int64, signatures [][]byte, err error) {
	var haveTimestamp bool
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, fmt.Errorf("element %q is not a key=value pair", part)
		}
		switch key {
		case "t":
			ts, parseErr := strconv.ParseInt(value, 10, 64)
			if parseErr != nil {
				return 0, nil, fmt.Errorf("timestamp %q is not an integer", value)
			}
			timestamp = ts
			haveTimestamp = true
		case "v1":
			sig, decodeErr := hex.DecodeString(value)
			if decodeErr != nil {
				return 0, nil, fmt.Errorf("signature %q is not hex", value)
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTimestamp {
		return 0, nil, errors.New("no timestamp element")
	}
	if len(signatures) == 0 {
		return 0, nil, errors.New("no v1 signature element")
	}
	return timestamp, signatures, nil
}
