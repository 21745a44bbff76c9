package universe

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// instrumentData is the JSON document stored in the instruments data column.
type instrumentData struct {
	Venue  string `json:"venue"`
	NameEN string `json:"name_en,omitempty"`
	NameCN string `json:"name_cn,omitempty"`
	Tags   Tags   `json:"tags"`
}

// Repository handles instrument database operations.
type Repository struct {
	universeDB *sql.DB
	log        zerolog.Logger
}

// NewRepository creates a new instrument repository.
func NewRepository(universeDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		universeDB: universeDB,
		log:        log.With().Str("repo", "universe").Logger(),
	}
}

// Upsert inserts or replaces an instrument. The embedding column is preserved
// on replace only when the stored tags and names are unchanged; otherwise it
// is cleared so the next snapshot build recomputes it.
func (r *Repository) Upsert(inst Instrument) error {
	symbol := strings.ToUpper(strings.TrimSpace(inst.Symbol))
	if symbol == "" {
		return fmt.Errorf("instrument symbol is required")
	}

	data, err := json.Marshal(instrumentData{
		Venue:  inst.Venue,
		NameEN: inst.NameEN,
		NameCN: inst.NameCN,
		Tags:   inst.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal instrument %s: %w", symbol, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	var existing string
	err = r.universeDB.QueryRow("SELECT data FROM instruments WHERE symbol = ?", symbol).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = r.universeDB.Exec(
			`INSERT INTO instruments (symbol, venue, data, latest_px, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			symbol, inst.Venue, string(data), inst.LatestPrice, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert instrument %s: %w", symbol, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up instrument %s: %w", symbol, err)
	}

	if existing == string(data) {
		_, err = r.universeDB.Exec(
			"UPDATE instruments SET latest_px = ?, updated_at = ? WHERE symbol = ?",
			inst.LatestPrice, now, symbol)
	} else {
		// Descriptive data changed: drop the embedding so it gets rebuilt.
		_, err = r.universeDB.Exec(
			`UPDATE instruments SET venue = ?, data = ?, embedding = NULL, latest_px = ?, updated_at = ?
			 WHERE symbol = ?`,
			inst.Venue, string(data), inst.LatestPrice, now, symbol)
	}
	if err != nil {
		return fmt.Errorf("failed to update instrument %s: %w", symbol, err)
	}
	return nil
}

// GetAll returns every instrument in the catalogue, ordered by symbol.
func (r *Repository) GetAll() ([]Instrument, error) {
	rows, err := r.universeDB.Query(
		"SELECT symbol, venue, data, embedding, latest_px FROM instruments ORDER BY symbol ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instruments: %w", err)
	}

	return instruments, nil
}

// GetBySymbol returns one instrument, or nil when absent.
func (r *Repository) GetBySymbol(symbol string) (*Instrument, error) {
	rows, err := r.universeDB.Query(
		"SELECT symbol, venue, data, embedding, latest_px FROM instruments WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	inst, err := scanInstrument(rows)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// SaveEmbedding persists the embedding vector for a symbol.
func (r *Repository) SaveEmbedding(symbol string, vector []float64) error {
	blob, err := msgpack.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding for %s: %w", symbol, err)
	}

	_, err = r.universeDB.Exec(
		"UPDATE instruments SET embedding = ?, updated_at = ? WHERE symbol = ?",
		blob, time.Now().UTC().Format(time.RFC3339), symbol)
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", symbol, err)
	}
	return nil
}

// Count returns the number of catalogued instruments.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.universeDB.QueryRow("SELECT COUNT(*) FROM instruments").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count instruments: %w", err)
	}
	return count, nil
}

func scanInstrument(rows *sql.Rows) (Instrument, error) {
	var (
		inst     Instrument
		data     string
		embBlob  []byte
		latestPx sql.NullFloat64
	)
	if err := rows.Scan(&inst.Symbol, &inst.Venue, &data, &embBlob, &latestPx); err != nil {
		return Instrument{}, fmt.Errorf("failed to scan instrument: %w", err)
	}

	var doc instrumentData
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return Instrument{}, fmt.Errorf("failed to unmarshal instrument %s: %w", inst.Symbol, err)
	}
	inst.NameEN = doc.NameEN
	inst.NameCN = doc.NameCN
	inst.Tags = doc.Tags
	if doc.Venue != "" {
		inst.Venue = doc.Venue
	}

	if len(embBlob) > 0 {
		if err := msgpack.Unmarshal(embBlob, &inst.Embedding); err != nil {
			return Instrument{}, fmt.Errorf("failed to decode embedding for %s: %w", inst.Symbol, err)
		}
	}
	if latestPx.Valid {
		px := latestPx.Float64
		inst.LatestPrice = &px
	}

	return inst, nil
}
