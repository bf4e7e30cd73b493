package introspect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// Fingerprint hashes the RFC 8785 canonical form of the model. Timing
// fields, the install path and any previous fingerprint are excluded, so two
// analyses of the same interface produce the same value.
func Fingerprint(m *types.InterfaceModel) (string, error) {
	stripped := *m
	stripped.BinaryPath = ""
	stripped.Metadata.AnalysisDurationMS = 0
	stripped.Metadata.AnalyzedAt = time.Time{}
	stripped.Metadata.Fingerprint = ""

	raw, err := json.Marshal(&stripped)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize model: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
