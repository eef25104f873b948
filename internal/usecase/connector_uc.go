// File: internal/usecase/connector_uc.go
package usecase

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"

	"github.com/rs/zerolog"
)

const (
	confidenceAlias   = 1.0
	confidenceCatalog = 0.8
	confidenceSession = 0.5
)

var _ ConnectorUseCase = (*connectorUC)(nil)

type ConnectorUseCase interface {
	// Resolve maps text to connector ids: aliases, then catalog, then the
	// session's last set. More than one distinct match at a stage is ambiguous.
	Resolve(ctx context.Context, sessionID, text string) (model.ConnectorResolution, error)
}

type connectorUC struct {
	aliases  map[string][]string // normalized alias -> connector ids
	catalog  adapter.ConnectorCatalog
	sessions repository.SessionRepository
	log      *zerolog.Logger
}

// NewConnectorUseCase accepts a nil catalog when no remote catalog is configured.
func NewConnectorUseCase(aliases map[string][]string, catalog adapter.ConnectorCatalog, sessions repository.SessionRepository, logger *zerolog.Logger) *connectorUC {
	norm := make(map[string][]string, len(aliases))
	for alias, ids := range aliases {
		key := normalizePhrase(alias)
		if key == "" || len(ids) == 0 {
			continue
		}
		norm[key] = append([]string(nil), ids...)
	}
	l := logger.With().Str("component", "connectors").Logger()
	return &connectorUC{aliases: norm, catalog: catalog, sessions: sessions, log: &l}
}

func (c *connectorUC) Resolve(ctx context.Context, sessionID, text string) (model.ConnectorResolution, error) {
	hay := " " + normalizePhrase(text) + " "

	if res, ok := c.matchAliases(hay); ok {
		return c.remember(ctx, sessionID, res), nil
	}

	if c.catalog != nil {
		list, err := c.catalog.List(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("connector catalog unavailable")
		} else if res, ok := matchCatalog(hay, list); ok {
			return c.remember(ctx, sessionID, res), nil
		}
	}

	if sessionID != "" && c.sessions != nil {
		s, err := c.sessions.FindByID(ctx, sessionID)
		if err == nil && len(s.LastConnectors) > 0 {
			return model.ConnectorResolution{
				Status:       model.ResolutionSessionDefault,
				ConnectorIDs: append([]string(nil), s.LastConnectors...),
				Confidence:   confidenceSession,
				Source:       model.SourceSession,
			}, nil
		}
	}
	return model.ConnectorResolution{Status: model.ResolutionNone}, nil
}

func (c *connectorUC) matchAliases(hay string) (model.ConnectorResolution, bool) {
	groups := make(map[string][]string)
	for alias, ids := range c.aliases {
		if strings.Contains(hay, " "+alias+" ") {
			groups[strings.Join(sortedCopy(ids), ",")] = ids
		}
	}
	switch len(groups) {
	case 0:
		return model.ConnectorResolution{}, false
	case 1:
		for _, ids := range groups {
			return model.ConnectorResolution{
				Status:       model.ResolutionMatched,
				ConnectorIDs: append([]string(nil), ids...),
				Confidence:   confidenceAlias,
				Source:       model.SourceAlias,
			}, true
		}
	}
	var cands []model.Connector
	for key := range groups {
		cands = append(cands, model.Connector{ID: key, Name: key})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].ID < cands[j].ID })
	return model.ConnectorResolution{Status: model.ResolutionAmbiguous, Source: model.SourceAlias, Candidates: cands}, true
}

func matchCatalog(hay string, list []model.Connector) (model.ConnectorResolution, bool) {
	seen := make(map[string]bool)
	var hits []model.Connector
	for _, conn := range list {
		name := normalizePhrase(conn.Name)
		if name == "" || seen[conn.ID] {
			continue
		}
		if strings.Contains(hay, " "+name+" ") {
			seen[conn.ID] = true
			hits = append(hits, conn)
		}
	}
	switch len(hits) {
	case 0:
		return model.ConnectorResolution{}, false
	case 1:
		return model.ConnectorResolution{
			Status:       model.ResolutionMatched,
			ConnectorIDs: []string{hits[0].ID},
			Confidence:   confidenceCatalog,
			Source:       model.SourceCatalog,
		}, true
	}
	return model.ConnectorResolution{Status: model.ResolutionAmbiguous, Source: model.SourceCatalog, Candidates: hits}, true
}

func (c *connectorUC) remember(ctx context.Context, sessionID string, res model.ConnectorResolution) model.ConnectorResolution {
	if res.Status != model.ResolutionMatched || sessionID == "" || c.sessions == nil {
		return res
	}
	if err := c.sessions.SetLastConnectors(ctx, sessionID, res.ConnectorIDs); err != nil {
		c.log.Warn().Err(err).Msg("remember session connectors failed")
	}
	return res
}

// normalizePhrase lowercases and collapses every non-alphanumeric run to one space.
func normalizePhrase(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
