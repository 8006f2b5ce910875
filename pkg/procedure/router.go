package procedure

import (
	"context"
	"fmt"

	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/sirupsen/logrus"
)

// Router classifies a free-text request into a procedure. Stateless per
// call; the only state is the catalog, fixed at construction.
type Router struct {
	classifier runner.Classifier
	catalog    *Catalog
	logger     *logrus.Entry
}

// NewRouter builds a router over the given classifier and catalog.
func NewRouter(classifier runner.Classifier, catalog *Catalog) *Router {
	return &Router{
		classifier: classifier,
		catalog:    catalog,
		logger:     logging.NewLogger("router"),
	}
}

// DetermineRoutine classifies requestText and resolves the procedure to
// run. Classification failures of any kind fall back to the default
// procedure rather than propagating: a misrouted request still gets
// useful work done, a blocked one does not.
func (r *Router) DetermineRoutine(ctx context.Context, requestText string) *RoutingDecision {
	decision, err := r.classify(ctx, requestText)
	if err == nil {
		return decision
	}

	r.logger.WithError(err).Warn("Routing classification failed, falling back")

	fallback, fbErr := r.catalog.Get(FallbackProcedureName)
	if fbErr != nil {
		// The built-in catalog always carries the fallback; reaching
		// this means the catalog was mangled at startup.
		panic(fmt.Sprintf("fallback procedure %q missing from catalog: %v", FallbackProcedureName, fbErr))
	}

	return &RoutingDecision{
		Classification: ClassCode,
		Procedure:      fallback,
		Reasoning:      fmt.Sprintf("Fallback to %s due to error: %v", FallbackProcedureName, err),
	}
}

func (r *Router) classify(ctx context.Context, requestText string) (*RoutingDecision, error) {
	raw, err := r.classifier.Classify(ctx, classifierSystemPrompt, requestText)
	if err != nil {
		return nil, err
	}

	class, ok := parseClassification(raw)
	if !ok {
		return nil, fmt.Errorf("classifier returned unknown label %q", raw)
	}

	procedureName, err := r.catalog.ProcedureForClassification(class)
	if err != nil {
		return nil, err
	}

	proc, err := r.catalog.Get(procedureName)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"classification": class,
		"procedure":      procedureName,
	}).Debug("Routed request")

	return &RoutingDecision{
		Classification: class,
		Procedure:      proc,
		Reasoning:      fmt.Sprintf("Classified as %q, using procedure %q", class, procedureName),
	}, nil
}

func parseClassification(raw string) (Classification, bool) {
	for _, c := range Classifications {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}
