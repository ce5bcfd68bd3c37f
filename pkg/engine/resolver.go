package engine

import (
	"context"
	"errors"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/log"
	"github.com/admitflow/admitflow/pkg/vision"
)

// Tier identifies which resolution strategy produced a locator.
type Tier string

const (
	TierNone     Tier = ""
	TierSelector Tier = "selector"
	TierHint     Tier = "hint"
	TierVision   Tier = "vision"
)

// Locator is a resolved, action-ready reference to a page element: a
// stable selector for the first two tiers, normalized coordinates for
// the visual tier.
type Locator struct {
	Tier     Tier
	Selector string
	Point    vision.Point
}

// ByPoint reports whether the locator addresses coordinates rather than
// an element reference.
func (l Locator) ByPoint() bool {
	return l.Tier == TierVision
}

// target is a step's fully substituted target specification.
type target struct {
	selectors []string
	hints     []string
	deep      bool
	action    string
}

// Resolver finds an action-ready locator for a target specification,
// degrading through three strategies of increasing cost and decreasing
// precision, and stopping at the first usable result.
type Resolver struct {
	driver browser.Driver
	vision vision.Locator
	logger log.Logger
}

func NewResolver(driver browser.Driver, vis vision.Locator, logger log.Logger) *Resolver {
	return &Resolver{driver: driver, vision: vis, logger: logger}
}

// Resolve returns a locator or an element-not-found step error once all
// tiers have missed. A tier miss is never conflated with an interaction
// failure: driver evaluation errors surface as interaction errors, not
// as misses.
func (r *Resolver) Resolve(ctx context.Context, tgt target) (Locator, error) {
	// Tier 1: explicit selectors, in declared order. A selector that
	// matches zero, several, or only non-interactable elements falls
	// through silently.
	for _, sel := range tgt.selectors {
		marked, err := r.driver.QueryUnique(ctx, sel)
		if err != nil {
			return Locator{}, classify(err)
		}
		if marked != "" {
			r.logger.Debug().Str("tier", string(TierSelector)).Str("selector", sel).Msg("Target resolved")
			return Locator{Tier: TierSelector, Selector: marked}, nil
		}
	}

	// Tier 2: textual hints against visible text and accessible labels,
	// first match in document order.
	for _, hint := range tgt.hints {
		marked, err := r.driver.FindByText(ctx, hint, tgt.deep)
		if err != nil {
			return Locator{}, classify(err)
		}
		if marked != "" {
			r.logger.Debug().Str("tier", string(TierHint)).Str("hint", hint).Msg("Target resolved")
			return Locator{Tier: TierHint, Selector: marked}, nil
		}
	}

	// Tier 3: visual fallback. Strictly last resort, an external model
	// round trip.
	if len(tgt.hints) > 0 {
		shot, err := r.driver.Screenshot(ctx)
		if err != nil {
			return Locator{}, classify(err)
		}
		pt, err := r.vision.Locate(ctx, shot, tgt.hints, tgt.action)
		if err == nil {
			r.logger.Debug().Str("tier", string(TierVision)).Msgf("Target resolved at (%.3f, %.3f)", pt.X, pt.Y)
			return Locator{Tier: TierVision, Point: pt}, nil
		}
		if !errors.Is(err, vision.ErrNotFound) {
			r.logger.Warn().Err(err).Msg("Visual locate unavailable, treating as miss")
		}
	}

	return Locator{}, notFoundErr("no tier resolved target (selectors=%d hints=%d)", len(tgt.selectors), len(tgt.hints))
}
