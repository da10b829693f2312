package query

import (
	"context"

	"campus-assistant/internal/domain/entity"
	"campus-assistant/pkg/logger"
)

// Agent is the hybrid retrieval agent: it classifies the question, gathers
// document and/or relational evidence, and hands both to the composer. The
// caller always receives a renderable StructuredResponse.
type Agent struct {
	router      *Router
	retriever   *Retriever
	synthesizer *SQLSynthesizer
	composer    *Composer
	log         *logger.Logger
}

func NewAgent(router *Router, retriever *Retriever, synthesizer *SQLSynthesizer, composer *Composer, log *logger.Logger) *Agent {
	return &Agent{
		router:      router,
		retriever:   retriever,
		synthesizer: synthesizer,
		composer:    composer,
		log:         log,
	}
}

// AnswerResult pairs the response with the routing decision and the evidence
// sources, for the delivery layer to expose.
type AnswerResult struct {
	Response *entity.StructuredResponse
	Intent   entity.QueryIntent
	Sources  []entity.SimilarChunk
	SQL      string
}

func (a *Agent) Answer(ctx context.Context, question string, history []string) *AnswerResult {
	intent := a.router.Classify(ctx, question, history)
	a.log.Debug("question routed", "route", intent.Route, "confidence", intent.Confidence)

	wantRAG := intent.Route == entity.RouteRAG || intent.Route == entity.RouteHybrid
	wantSQL := intent.Route == entity.RouteSQL || intent.Route == entity.RouteHybrid

	var ragCtx *RetrievedContext
	if wantRAG {
		var err error
		ragCtx, err = a.retriever.Retrieve(ctx, question)
		if err != nil {
			// embedding failures are fatal to the retrieval leg, not to
			// the request: the other leg may still carry evidence
			a.log.Error("retrieval failed", "error", err)
			ragCtx = nil
		}
	}

	var sqlEv *SQLEvidence
	if wantSQL {
		var err error
		sqlEv, err = a.synthesizer.Synthesize(ctx, question)
		if err != nil {
			a.log.Warn("sql synthesis failed", "kind", entity.KindOf(err), "error", err)
			sqlEv = nil
		}
	}

	response := a.composer.Compose(ctx, question, ragCtx, sqlEv)

	result := &AnswerResult{Response: response, Intent: intent}
	if ragCtx != nil {
		result.Sources = ragCtx.Chunks
	}
	if sqlEv != nil {
		result.SQL = sqlEv.Statement
	}
	return result
}
