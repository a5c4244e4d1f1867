// Package app assembles the batch engine from configuration. Both the HTTP
// server and the CLI build their orchestrator here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/ai"
	"github.com/bosocmputer/invoice_po_matcher/internal/extract"
	"github.com/bosocmputer/invoice_po_matcher/internal/grouper"
	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
	"github.com/bosocmputer/invoice_po_matcher/internal/pipeline"
	"github.com/bosocmputer/invoice_po_matcher/internal/storage"
	"go.uber.org/zap"
)

// Store is what the engine needs from the database, audit log included.
type Store interface {
	pipeline.Store
	matching.UsageLogger
}

// Engine owns the orchestrator and the clients behind it.
type Engine struct {
	Orchestrator *pipeline.Orchestrator
	// Providers actually in use, "none" when disabled.
	AssistProvider string
	OCRProvider    string

	closers []func() error
}

// Close releases provider clients and the artifact store.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewEngine wires extraction, assist and artifact storage per the loaded
// configuration. Call Close when done, also after an error.
func NewEngine(ctx context.Context, store Store, log *zap.Logger) (*Engine, error) {
	e := &Engine{AssistProvider: "none", OCRProvider: "none"}

	artifacts, closeArtifacts, err := storage.NewArtifactStoreFromEnv(ctx, log)
	if err != nil {
		return e, err
	}
	e.closers = append(e.closers, closeArtifacts)

	extractor := extract.NewExtractor(extract.NewPDFTextExtractor(), log.Named("extract"))
	recognizer, err := extract.NewRecognizerFromEnv(ctx, ai.NewLimiterFromEnv(), log.Named("ocr"))
	if err != nil {
		return e, fmt.Errorf("failed to create OCR provider: %w", err)
	}
	if recognizer != nil {
		renderer := extract.NewFitzRenderer()
		extractor.Renderer = renderer
		extractor.Recognizer = recognizer
		extractor.DPI = configs.OCR_DPI
		extractor.Enhance = configs.ENABLE_IMAGE_PREPROCESSING
		e.closers = append(e.closers, renderer.Close)
		if c, ok := recognizer.(io.Closer); ok {
			e.closers = append(e.closers, c.Close)
		}
		e.OCRProvider = configs.OCR_PROVIDER
	} else {
		log.Warn("OCR disabled, scanned pages will be reported as unmatched")
	}

	var assistant *matching.Assistant
	completer, err := ai.NewCompleter(ctx, ai.ConfigFromEnv(configs.ASSIST_PROVIDER), ai.NewLimiterFromEnv(), log.Named("assist"))
	if err != nil {
		return e, fmt.Errorf("failed to create assist provider: %w", err)
	}
	if completer != nil {
		assistant = matching.NewAssistant(completer, store, log.Named("assist"))
		assistant.InputPricePerMillion = configs.ASSIST_INPUT_PRICE_PER_MILLION
		assistant.OutputPricePerMillion = configs.ASSIST_OUTPUT_PRICE_PER_MILLION
		e.closers = append(e.closers, completer.Close)
		e.AssistProvider = completer.GetProviderName()
	}

	e.Orchestrator = pipeline.New(store, extractor, grouper.NewSplitter(artifacts), assistant, log.Named("pipeline"))
	log.Info("engine ready",
		zap.String("assist_provider", e.AssistProvider),
		zap.String("ocr_provider", e.OCRProvider))
	return e, nil
}
