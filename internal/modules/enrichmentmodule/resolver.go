package enrichmentmodule

import (
	"context"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Resolver runs canonical-ID searches through the registered search agent
// and classifies the results. Search failures are non-fatal: the entity
// simply stays unresolved until the next pass.
type Resolver struct {
	registry   *Registry
	autoApply  float64
	trackApply float64
	review     float64
}

func NewResolver(registry *Registry, autoApply, trackAutoApply, review float64) *Resolver {
	return &Resolver{
		registry:   registry,
		autoApply:  autoApply,
		trackApply: trackAutoApply,
		review:     review,
	}
}

// searcher returns the highest-priority enabled canonical-ID agent, or nil
// when none is registered.
func (r *Resolver) searcher() *Agent {
	agents := r.registry.AgentsWithCapability(CapCanonicalID)
	if len(agents) == 0 {
		return nil
	}
	return agents[0]
}

// ResolveArtist searches for the artist's canonical ID and classifies the
// candidates. A search error or missing search agent yields an ignore
// decision, never an error.
func (r *Resolver) ResolveArtist(ctx context.Context, name string) Decision {
	agent := r.searcher()
	if agent == nil {
		return Decision{Action: ActionIgnore}
	}
	candidates, err := agent.Search.SearchArtist(ctx, name, 10)
	if err != nil {
		logger.Warn("Canonical ID search failed for artist %q via %s: %v", name, agent.Name, err)
		return Decision{Action: ActionIgnore}
	}
	return Classify(KindArtist, candidates, ThresholdsFor(KindArtist, r.autoApply, r.trackApply, r.review))
}

// ResolveAlbum searches for the album's canonical ID and classifies the
// candidates.
func (r *Resolver) ResolveAlbum(ctx context.Context, title, artist string) Decision {
	agent := r.searcher()
	if agent == nil {
		return Decision{Action: ActionIgnore}
	}
	candidates, err := agent.Search.SearchAlbum(ctx, title, artist, 10)
	if err != nil {
		logger.Warn("Canonical ID search failed for album %q / %q via %s: %v", title, artist, agent.Name, err)
		return Decision{Action: ActionIgnore}
	}
	return Classify(KindAlbum, candidates, ThresholdsFor(KindAlbum, r.autoApply, r.trackApply, r.review))
}

// ResolveTrack searches for the track's canonical ID and classifies the
// candidates under the stricter track threshold.
func (r *Resolver) ResolveTrack(ctx context.Context, params TrackSearchParams) Decision {
	agent := r.searcher()
	if agent == nil {
		return Decision{Action: ActionIgnore}
	}
	candidates, err := agent.Search.SearchTrack(ctx, params, 10)
	if err != nil {
		logger.Warn("Canonical ID search failed for track %q via %s: %v", params.Title, agent.Name, err)
		return Decision{Action: ActionIgnore}
	}
	return Classify(KindTrack, candidates, ThresholdsFor(KindTrack, r.autoApply, r.trackApply, r.review))
}

// CandidateByID fetches one candidate directly by external ID, used when
// resolving an accepted conflict back into full metadata.
func (r *Resolver) CandidateByID(ctx context.Context, externalID string) (*CandidateMatch, error) {
	agent := r.searcher()
	if agent == nil {
		return nil, nil
	}
	return agent.Search.ByID(ctx, externalID)
}
