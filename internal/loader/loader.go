// Package loader ingests upstream record feeds into the partitioned store.
//
// Loads write through the partition router only; the lookup cache is never
// touched, so a reload does not need any invalidation step. Cached entries
// simply age out.
package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"number-lookup-api/configs"
	"number-lookup-api/internal/models"
	"number-lookup-api/internal/partition"
	"number-lookup-api/internal/store"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Status markers written after a successful load, read back by the status
// endpoints.
const (
	StatusKeyPrefix     = "db:status:"
	LastAccessKeyPrefix = "db:last_access:"
)

// Result reports one source load. Fetch failures are the loader's own to
// report; store failures surface here unretried, per the store contract.
type Result struct {
	DB        string `json:"db"`
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

type Loader struct {
	store      *store.PartitionedStore
	client     *redis.Client
	httpClient *http.Client
	batchSize  int
}

func NewLoader(s *store.PartitionedStore, client *redis.Client, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Loader{
		store:      s,
		client:     client,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		batchSize:  batchSize,
	}
}

// LoadCSV fetches one CSV feed and writes its rows through the store.
// Expected column order: name, guardian name, number, alt number, id number,
// alt id number, age, gender, address, district, pincode, state, town. Rows
// with fewer columns or no valid number are skipped, not fatal.
func (l *Loader) LoadCSV(ctx context.Context, src configs.SourceDatabase) Result {
	log.Printf("Loading %s...", src.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{DB: src.ID, Error: err.Error()}
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return Result{DB: src.ID, Error: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{DB: src.ID, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	processed := 0
	batch := make([]store.Entry, 0, l.batchSize)
	header := true

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{DB: src.ID, Processed: processed, Error: err.Error()}
		}
		if header {
			header = false
			continue
		}
		if len(row) < 13 {
			continue
		}

		rec := recordFromRow(row, src.ID)
		batch = appendEntries(batch, rec)

		if len(batch) >= l.batchSize {
			n, err := l.store.PutBatch(ctx, batch)
			if err != nil {
				return Result{DB: src.ID, Processed: processed, Error: err.Error()}
			}
			processed += n
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		n, err := l.store.PutBatch(ctx, batch)
		if err != nil {
			return Result{DB: src.ID, Processed: processed, Error: err.Error()}
		}
		processed += n
	}

	l.markLoaded(ctx, src.ID)
	log.Printf("%s: %d records", src.Name, processed)
	return Result{DB: src.ID, Success: true, Processed: processed}
}

// LoadAll runs every enabled CSV feed in sequence.
func (l *Loader) LoadAll(ctx context.Context) []Result {
	results := []Result{}
	for _, src := range configs.SourceDatabases() {
		if !src.Enabled {
			continue
		}
		results = append(results, l.LoadCSV(ctx, src))
	}
	return results
}

// LoadMySQL streams rows from the configured MySQL feed table into the
// store, batch by batch.
func (l *Loader) LoadMySQL(ctx context.Context, db *gorm.DB, table string) Result {
	const id = "mysql"
	log.Printf("Loading MySQL feed from %s...", table)

	processed := 0
	var rows []models.SourceRecord
	tx := db.WithContext(ctx).Table(table).FindInBatches(&rows, l.batchSize, func(_ *gorm.DB, _ int) error {
		batch := make([]store.Entry, 0, len(rows)*2)
		for i := range rows {
			batch = appendEntries(batch, recordFromSource(&rows[i], id))
		}
		n, err := l.store.PutBatch(ctx, batch)
		if err != nil {
			return err
		}
		processed += n
		return nil
	})
	if tx.Error != nil {
		return Result{DB: id, Processed: processed, Error: tx.Error.Error()}
	}

	l.markLoaded(ctx, id)
	log.Printf("MySQL feed: %d records", processed)
	return Result{DB: id, Success: true, Processed: processed}
}

// appendEntries indexes a record under each of its valid numbers: a record
// reachable by both its primary and alternate number is stored twice, once
// per key, exactly like a two-column source row.
func appendEntries(batch []store.Entry, rec *models.Record) []store.Entry {
	if partition.IsValidNumber(rec.Number) {
		primary := *rec
		batch = append(batch, store.Entry{Number: rec.Number, Record: &primary})
	}
	if partition.IsValidNumber(rec.AltNumber) {
		alt := *rec
		batch = append(batch, store.Entry{Number: rec.AltNumber, Record: &alt})
	}
	return batch
}

func recordFromRow(row []string, sourceID string) *models.Record {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	return &models.Record{
		Name:         get(0),
		GuardianName: get(1),
		Number:       get(2),
		AltNumber:    get(3),
		IDNumber:     get(4),
		AltIDNumber:  get(5),
		Age:          get(6),
		Gender:       get(7),
		Address:      get(8),
		District:     get(9),
		Pincode:      get(10),
		State:        get(11),
		Town:         get(12),
		Source:       sourceID,
	}
}

func recordFromSource(r *models.SourceRecord, sourceID string) *models.Record {
	return &models.Record{
		Name:         strings.TrimSpace(r.Name),
		GuardianName: strings.TrimSpace(r.GuardianName),
		Number:       strings.TrimSpace(r.Number),
		AltNumber:    strings.TrimSpace(r.AltNumber),
		IDNumber:     strings.TrimSpace(r.IDNumber),
		AltIDNumber:  strings.TrimSpace(r.AltIDNumber),
		Age:          strings.TrimSpace(r.Age),
		Gender:       strings.TrimSpace(r.Gender),
		Address:      strings.TrimSpace(r.Address),
		District:     strings.TrimSpace(r.District),
		Pincode:      strings.TrimSpace(r.Pincode),
		State:        strings.TrimSpace(r.State),
		Town:         strings.TrimSpace(r.Town),
		Source:       sourceID,
	}
}

func (l *Loader) markLoaded(ctx context.Context, id string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := l.client.Set(ctx, StatusKeyPrefix+id, "loaded", 0).Err(); err != nil {
		log.Printf("Failed to mark %s loaded: %v", id, err)
		return
	}
	l.client.Set(ctx, LastAccessKeyPrefix+id, now, 0)
}
