//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/db/memstore"
)

type stubCatalog struct {
	list []model.Connector
	err  error
}

func (s *stubCatalog) List(context.Context) ([]model.Connector, error) { return s.list, s.err }

func TestConnectors_Resolve(t *testing.T) {
	ctx := context.Background()
	repos := memstore.New().Repositories()
	sess, _ := model.NewChannelSession("whatsapp", "c", "u", time.Now(), time.Hour)
	stored, _ := repos.Sessions.Upsert(ctx, sess)

	aliases := map[string][]string{
		"gmail":       {"google-mail"},
		"google mail": {"google-mail"},
		"cal":         {"google-calendar"},
	}
	catalog := &stubCatalog{list: []model.Connector{
		{ID: "notion", Name: "Notion"},
		{ID: "slack", Name: "Slack"},
	}}
	uc := NewConnectorUseCase(aliases, catalog, repos.Sessions, testLogger())

	res, err := uc.Resolve(ctx, stored.ID, "check my Gmail (google mail) inbox")
	if err != nil || res.Status != model.ResolutionMatched || res.Source != model.SourceAlias || res.Confidence != 1.0 {
		t.Fatalf("alias = %+v, %v", res, err)
	}

	res, _ = uc.Resolve(ctx, stored.ID, "gmail and cal please")
	if res.Status != model.ResolutionAmbiguous || len(res.Candidates) != 2 {
		t.Fatalf("ambiguous alias = %+v", res)
	}

	res, _ = uc.Resolve(ctx, stored.ID, "write it to notion")
	if res.Status != model.ResolutionMatched || res.Source != model.SourceCatalog || res.ConnectorIDs[0] != "notion" {
		t.Fatalf("catalog = %+v", res)
	}

	res, _ = uc.Resolve(ctx, stored.ID, "post to slack or notion")
	if res.Status != model.ResolutionAmbiguous || res.Source != model.SourceCatalog {
		t.Fatalf("ambiguous catalog = %+v", res)
	}

	// "notion" was the last match and becomes the session default
	res, _ = uc.Resolve(ctx, stored.ID, "and summarise it")
	if res.Status != model.ResolutionSessionDefault || res.ConnectorIDs[0] != "notion" || res.Confidence != 0.5 {
		t.Fatalf("session default = %+v", res)
	}

	res, _ = uc.Resolve(ctx, "", "nothing relevant")
	if res.Status != model.ResolutionNone || res.Usable() {
		t.Fatalf("none = %+v", res)
	}
}

func TestConnectors_CatalogErrorFallsThrough(t *testing.T) {
	uc := NewConnectorUseCase(nil, &stubCatalog{err: errors.New("down")}, nil, testLogger())
	res, err := uc.Resolve(context.Background(), "", "use notion")
	if err != nil || res.Status != model.ResolutionNone {
		t.Fatalf("res = %+v, %v", res, err)
	}
}

func TestConnectors_AliasIsWholeWord(t *testing.T) {
	uc := NewConnectorUseCase(map[string][]string{"cal": {"google-calendar"}}, nil, nil, testLogger())
	res, _ := uc.Resolve(context.Background(), "", "calculate my taxes")
	if res.Status != model.ResolutionNone {
		t.Fatalf("res = %+v", res)
	}
}
