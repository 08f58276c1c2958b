package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// transportErrorPolicy names what a probe concludes when the network call
// itself fails. This is a deliberate choice, not a side effect of error
// handling order.
type transportErrorPolicy int

const (
	// failClosed treats any transport error as an invalid session.
	failClosed transportErrorPolicy = iota
	// boundedFailOpen treats a transport error as a valid session at most
	// once per check interval; the next probe after the interval re-checks
	// for real. Avoids forcing a full re-login on a transient network blip
	// without letting a dead connection masquerade as a session forever.
	boundedFailOpen
)

// probePolicy is the active policy for transport errors during probing.
const probePolicy = boundedFailOpen

// Probe issues a cheap authenticated-only request to decide whether a held
// session is still accepted by the portal. Real network probes are gated to
// at most one per ValidityCheckInterval; inside the window the previous
// verdict is returned without touching the network.
//
// One Probe instance tracks one client's session.
type Probe struct {
	cfg      Config
	classify *classifier
	logger   arbor.ILogger

	mu          sync.Mutex
	lastProbe   time.Time
	lastVerdict bool
	failedOpen  bool
}

// NewProbe creates a validity probe for one session.
func NewProbe(cfg Config, logger arbor.ILogger) (*Probe, error) {
	classify, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return &Probe{
		cfg:      cfg,
		classify: classify,
		logger:   logger,
	}, nil
}

// IsValid reports whether the client's session is still accepted.
func (p *Probe) IsValid(ctx context.Context, client *http.Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastProbe.IsZero() && time.Since(p.lastProbe) < p.cfg.ValidityCheckInterval {
		return p.lastVerdict
	}

	verdict := p.probe(ctx, client)
	p.lastProbe = time.Now()
	p.lastVerdict = verdict
	return verdict
}

func (p *Probe) probe(ctx context.Context, client *http.Client) bool {
	probeURL := p.cfg.probeURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return p.onTransportError(err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return p.onTransportError(err)
	}

	p.failedOpen = false

	finalURL := resp.Request.URL
	verdict := p.classify.Authenticated(finalURL, doc)

	p.logger.Debug().
		Str("probe_url", probeURL).
		Str("final_url", finalURL.String()).
		Bool("valid", verdict).
		Msg("Session validity probed")

	return verdict
}

func (p *Probe) onTransportError(err error) bool {
	if probePolicy == failClosed {
		p.logger.Warn().Err(err).Msg("Probe transport error, treating session as invalid")
		return false
	}

	if p.failedOpen {
		p.logger.Warn().Err(err).Msg("Repeated probe transport error, treating session as invalid")
		return false
	}
	p.failedOpen = true
	p.logger.Warn().Err(err).Msg("Probe transport error, assuming session still valid this interval")
	return true
}

// markValid records an externally proven verdict (a login that just
// succeeded) so the next checks inside the interval skip the network.
func (p *Probe) markValid() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastProbe = time.Now()
	p.lastVerdict = true
	p.failedOpen = false
}
