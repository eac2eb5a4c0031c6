// Manual testing helper: signs a validation request the way a deployed
// product instance would and POSTs it to a running license service.
//
// Usage:
//
//	LICENSE_SIGNING_SECRET=... go run ./test/signclient \
//	    -key A1B2-C3D4-E5F6-G7H8 -feature create_database \
//	    -url http://localhost:8080/api/v1/validate
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hoststack/license-service/internal/fingerprint"
	"github.com/hoststack/license-service/internal/signature"
)

func main() {
	key := flag.String("key", "", "license key")
	feature := flag.String("feature", "create_database", "requested feature")
	url := flag.String("url", "http://localhost:8080/api/v1/validate", "validate endpoint")
	agent := flag.String("agent", "signclient/1.0", "user agent to present")
	flag.Parse()

	secret := os.Getenv("LICENSE_SIGNING_SECRET")
	if secret == "" {
		log.Fatal("LICENSE_SIGNING_SECRET is required")
	}
	if *key == "" {
		log.Fatal("-key is required")
	}

	extra := map[string]string{"client": "signclient"}
	fp := fingerprint.Derive("127.0.0.1", *agent, extra)
	timestamp := time.Now().Unix()

	verifier := signature.NewVerifier(secret, 5*time.Minute)
	sig := verifier.Sign(*key, timestamp, fp, *feature, extra)

	payload := map[string]interface{}{
		"license_key":     *key,
		"feature":         *feature,
		"timestamp":       timestamp,
		"signature":       sig,
		"fingerprint":     fp,
		"additional_data": extra,
	}

	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", *agent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("%d\n%s\n", resp.StatusCode, respBody)
}
