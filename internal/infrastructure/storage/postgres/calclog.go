package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "fuelops/internal/core/context"
	"fuelops/internal/core/id"
	"fuelops/internal/domain/pricing"
)

// CompressionAlgo names the compression applied to a stored payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// CalcLogEntry is one recorded calculation: the resolved scenario and
// the full result rows, compressed when large.
type CalcLogEntry struct {
	ID                id.ID           `db:"id"`
	TraceID           string          `db:"trace_id"`
	AirportID         id.ID           `db:"airport_id"`
	FlightType        string          `db:"flight_type"`
	UpliftAt          time.Time       `db:"uplift_at"`
	RowCount          int             `db:"row_count"`
	WorstStatus       string          `db:"worst_status"`
	DurationMs        int64           `db:"duration_ms"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

type calcLogPayload struct {
	Scenario *pricing.Scenario `json:"scenario"`
	Result   *pricing.Result   `json:"result"`
}

// CalcLog persists finished calculations for later inspection. It
// implements pricing.AuditSink; recording is best-effort from the
// service's point of view, so failures surface as errors but never
// block a result.
type CalcLog struct {
	pool              *Pool
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewCalcLog creates the calculation audit log.
func NewCalcLog(pool *Pool) (*CalcLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &CalcLog{
		pool:              pool,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record implements pricing.AuditSink.
func (l *CalcLog) Record(ctx context.Context, scn *pricing.Scenario, res *pricing.Result) error {
	payload, err := json.Marshal(calcLogPayload{Scenario: scn, Result: res})
	if err != nil {
		return fmt.Errorf("marshal calc payload: %w", err)
	}

	entry := CalcLogEntry{
		ID:              id.New(),
		TraceID:         appctx.GetTraceID(ctx),
		AirportID:       scn.AirportID,
		FlightType:      string(scn.FlightType),
		UpliftAt:        scn.UpliftAt,
		RowCount:        len(res.Rows),
		WorstStatus:     string(worstStatus(res.Rows)),
		DurationMs:      res.Duration.Milliseconds(),
		Payload:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if len(payload) > l.compressThreshold {
		entry.PayloadCompressed = l.encoder.EncodeAll(payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO pricing_calc_log (
			id, trace_id, airport_id, flight_type, uplift_at,
			row_count, worst_status, duration_ms,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = l.pool.Exec(ctx, sql,
		entry.ID, entry.TraceID, entry.AirportID, entry.FlightType, entry.UpliftAt,
		entry.RowCount, entry.WorstStatus, entry.DurationMs,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert calc log entry: %w", err)
	}
	return nil
}

// History returns the most recent recorded calculations for an airport,
// payloads decompressed.
func (l *CalcLog) History(ctx context.Context, airportID id.ID, limit int) ([]CalcLogEntry, error) {
	sql := `
		SELECT id, trace_id, airport_id, flight_type, uplift_at,
		       row_count, worst_status, duration_ms,
		       payload, payload_compressed, compression_algo, created_at
		FROM pricing_calc_log
		WHERE airport_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := l.pool.Query(ctx, sql, airportID, limit)
	if err != nil {
		return nil, fmt.Errorf("query calc log: %w", err)
	}
	defer rows.Close()

	var entries []CalcLogEntry
	for rows.Next() {
		var e CalcLogEntry
		err := rows.Scan(
			&e.ID, &e.TraceID, &e.AirportID, &e.FlightType, &e.UpliftAt,
			&e.RowCount, &e.WorstStatus, &e.DurationMs,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan calc log entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			decompressed, err := l.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress calc payload: %w", err)
			}
			e.Payload = decompressed
			e.PayloadCompressed = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func worstStatus(rows []*pricing.ResultRow) pricing.Status {
	worst := pricing.StatusOK
	for _, r := range rows {
		switch r.Status {
		case pricing.StatusError:
			return pricing.StatusError
		case pricing.StatusWarning:
			worst = pricing.StatusWarning
		}
	}
	return worst
}
