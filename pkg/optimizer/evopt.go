package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

const evoptSchedulePath = "/optimize/charge-schedule"

// EVopt implements the Backend interface against an EVopt charge-schedule
// server. Requests and responses are translated between the canonical schema
// and the EVopt one on every call.
type EVopt struct {
	client        *http.Client
	baseURL       string
	timeout       time.Duration
	timeFrameBase int
	now           func() time.Time

	ring runtimeRing
}

// NewEVopt returns an EVopt backend for the server at baseURL.
// timeFrameBase is the slot width in seconds, 3600 or 900. The location
// anchors the horizon slicing to the configured wall clock.
func NewEVopt(baseURL string, timeout time.Duration, timeFrameBase int, loc *time.Location) *EVopt {
	return &EVopt{
		client:        common.HTTPClient(timeout),
		baseURL:       baseURL,
		timeout:       timeout,
		timeFrameBase: timeFrameBase,
		now:           func() time.Time { return time.Now().In(loc) },
	}
}

// Name implements the Backend interface.
func (b *EVopt) Name() string { return "evopt" }

// Optimize implements the Backend interface. The canonical request is
// validated, translated, sent, and the EVopt result is translated back.
func (b *EVopt) Optimize(ctx context.Context, req types.OptimizeRequest) (types.OptimizeResponse, float64, error) {
	now := b.now()
	evReq := translateRequest(req, now, b.timeFrameBase)

	if errs := validateRequest(req); len(errs) > 0 {
		err := fmt.Errorf("optimization request rejected: %s", strings.Join(errs, "; "))
		return errorResponse(err), b.ring.Average(), err
	}
	if errs := validateEvoptRequest(evReq); len(errs) > 0 {
		log.Ctx(ctx).ErrorContext(ctx, "built evopt payload failed schema validation",
			slog.String("errors", strings.Join(errs, "; ")),
		)
	}

	payload, err := json.Marshal(evReq)
	if err != nil {
		return errorResponse(err), b.ring.Average(), err
	}

	reqURL := b.baseURL + evoptSchedulePath
	log.Ctx(ctx).InfoContext(ctx, "requesting evopt optimization",
		slog.String("url", reqURL),
		slog.Duration("timeout", b.timeout),
	)

	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return errorResponse(err), b.ring.Average(), err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := b.now()
	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("evopt server not reachable, trying again next cycle: %w", err)
		return errorResponse(err), b.ring.Average(), err
	}
	defer httpResp.Body.Close()
	elapsed := b.now().Sub(start).Seconds()

	if httpResp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected evopt optimize status: %s", httpResp.Status)
		return errorResponse(err), b.ring.Average(), err
	}

	var evResp evoptResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&evResp); err != nil {
		err = fmt.Errorf("failed to decode evopt response: %w", err)
		return errorResponse(err), b.ring.Average(), err
	}

	b.ring.Record(elapsed)
	log.Ctx(ctx).InfoContext(ctx, "evopt optimization finished",
		slog.Float64("runtimeSeconds", elapsed),
	)
	return translateResponse(evResp, evReq, now, b.timeFrameBase), b.ring.Average(), nil
}
