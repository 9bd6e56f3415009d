package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"

	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

// Encoder turns canonical text into a fixed-dimension embedding vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Fingerprinter derives the deterministic identity of an incident request:
// same logical input yields the same exact hash, near-duplicate input yields
// a nearby embedding.
type Fingerprinter struct {
	encoder Encoder
	logger  *slog.Logger
}

// New constructs a Fingerprinter delegating embedding to the given encoder.
func New(encoder Encoder, logger *slog.Logger) *Fingerprinter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fingerprinter{encoder: encoder, logger: logger}
}

// Derive produces the fingerprint for a request, or MalformedInput when no
// structured error signature can be recovered from the log batch.
func (f *Fingerprinter) Derive(ctx context.Context, req models.IncidentRequest) (models.Fingerprint, error) {
	canonical, err := CanonicalText(req)
	if err != nil {
		return models.Fingerprint{}, err
	}

	exact := hashHex(canonical)

	embedding, err := f.encoder.Encode(ctx, canonical)
	if err != nil {
		if utils.KindOf(err) == utils.KindEncodingUnavailable {
			return models.Fingerprint{}, err
		}
		return models.Fingerprint{}, utils.E("fingerprint.derive", utils.KindEncodingUnavailable, "embedding encoder failed", err)
	}

	f.logger.Debug("fingerprint derived",
		slog.String("tenant_id", req.TenantID),
		slog.String("exact", exact[:12]),
		slog.Int("dims", len(embedding)))

	return models.Fingerprint{Exact: exact, Embedding: embedding}, nil
}

// CanonicalText assembles the normalized text the identity is derived from:
// a tenant header, the error signature lines, and the sorted document set.
func CanonicalText(req models.IncidentRequest) (string, error) {
	signature := ErrorSignature(req.LogLines)
	if len(signature) == 0 {
		return "", utils.E("fingerprint.canonical", utils.KindMalformedInput, "no structured error signature in log batch", nil)
	}

	docs := append([]string(nil), req.DocumentIDs...)
	sort.Strings(docs)

	var b strings.Builder
	b.WriteString("tenant=")
	b.WriteString(req.TenantID)
	b.WriteByte('\n')
	if req.Service != "" {
		b.WriteString("service=")
		b.WriteString(req.Service)
		b.WriteByte('\n')
	}
	for _, line := range signature {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("docs=")
	b.WriteString(hashHex(strings.Join(docs, ",")))
	return b.String(), nil
}

func hashHex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
