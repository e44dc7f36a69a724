package unitimport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type stubUnitRepo struct {
	units        map[string]domain.UnitOfCompetency
	requirements []domain.Requirement
}

func newStubUnitRepo() *stubUnitRepo {
	return &stubUnitRepo{units: map[string]domain.UnitOfCompetency{}}
}

func (r *stubUnitRepo) Create(ctx context.Context, unit domain.UnitOfCompetency) (domain.UnitOfCompetency, error) {
	if existing, ok := r.units[unit.Code]; ok {
		return existing, nil
	}
	r.units[unit.Code] = unit
	return unit, nil
}

func (r *stubUnitRepo) GetByCode(ctx context.Context, code string) (domain.UnitOfCompetency, error) {
	unit, ok := r.units[code]
	if !ok {
		return domain.UnitOfCompetency{}, repository.ErrNotFound
	}
	return unit, nil
}

func (r *stubUnitRepo) List(ctx context.Context, limit, offset int) ([]domain.UnitOfCompetency, error) {
	return nil, nil
}

func (r *stubUnitRepo) ListRequirements(ctx context.Context, unitID uuid.UUID) ([]domain.Requirement, error) {
	return r.requirements, nil
}

func (r *stubUnitRepo) UpsertRequirement(ctx context.Context, req domain.Requirement) (domain.Requirement, error) {
	for i, existing := range r.requirements {
		if existing.UnitID == req.UnitID && existing.Type == req.Type && existing.Number == req.Number {
			req.ID = existing.ID
			r.requirements[i] = req
			return req, nil
		}
	}
	req.ID = uuid.New()
	r.requirements = append(r.requirements, req)
	return req, nil
}

type stubImportLogRepo struct {
	entries []domain.ImportLogEntry
}

func (r *stubImportLogRepo) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubImportLogRepo) List(ctx context.Context, rtoID uuid.UUID, unitCode string, limit, offset int) ([]domain.ImportLogEntry, error) {
	return r.entries, nil
}

type recordingInvalidator struct {
	codes []string
}

func (r *recordingInvalidator) Invalidate(code string) {
	r.codes = append(r.codes, code)
}

func newImportService(units *stubUnitRepo, logs *stubImportLogRepo, cache CacheInvalidator) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewService(units, logs, cache, logger)
}

const sampleCSV = "requirement_type,requirement_number,requirement_text\n" +
	"knowledge_evidence,KE1,Legislative requirements for client records\n" +
	"performance_evidence,PE1,Responded to three simulated client scenarios\n" +
	"assessment_conditions,AC1,Assessment conducted in a simulated workplace\n"

func TestImportSeedsUnitAndRequirements(t *testing.T) {
	units := newStubUnitRepo()
	logs := &stubImportLogRepo{}
	cache := &recordingInvalidator{}
	svc := newImportService(units, logs, cache)

	summary, err := svc.Import(context.Background(), Request{
		RTOID:    uuid.New(),
		UnitCode: "chcccs015",
		FileName: "requirements.csv",
		Data:     strings.NewReader(sampleCSV),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if summary.TotalRows != 3 || summary.Imported != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, ok := units.units["CHCCCS015"]; !ok {
		t.Fatal("expected unit code to be upper-cased before upsert")
	}
	if len(units.requirements) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(units.requirements))
	}
	if len(cache.codes) != 1 || cache.codes[0] != "CHCCCS015" {
		t.Fatalf("expected cache invalidation for CHCCCS015, got %v", cache.codes)
	}
	if len(logs.entries) != 0 {
		t.Fatalf("expected no import errors, got %d", len(logs.entries))
	}
}

func TestImportStripsByteOrderMark(t *testing.T) {
	units := newStubUnitRepo()
	svc := newImportService(units, &stubImportLogRepo{}, nil)

	payload := string([]byte{0xEF, 0xBB, 0xBF}) + sampleCSV
	summary, err := svc.Import(context.Background(), Request{
		RTOID:    uuid.New(),
		UnitCode: "HLTHPS006",
		FileName: "requirements.csv",
		Data:     strings.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if summary.Imported != 3 {
		t.Fatalf("expected 3 imported rows, got %d", summary.Imported)
	}
}

func TestImportLogsBadRowsAndContinues(t *testing.T) {
	units := newStubUnitRepo()
	logs := &stubImportLogRepo{}
	svc := newImportService(units, logs, nil)

	payload := "requirement_type,requirement_number,requirement_text\n" +
		"knowledge_evidence,KE1,Valid row\n" +
		"mystery_category,X1,Unknown type\n" +
		"knowledge_evidence,,Missing number\n" +
		"performance_evidence,PE1,Another valid row\n"

	summary, err := svc.Import(context.Background(), Request{
		RTOID:    uuid.New(),
		UnitCode: "BSBWHS311",
		FileName: "requirements.csv",
		Data:     strings.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if summary.TotalRows != 4 || summary.Imported != 2 || summary.Failed != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(logs.entries) != 2 {
		t.Fatalf("expected 2 logged errors, got %d", len(logs.entries))
	}
	if logs.entries[0].RowNumber == nil || *logs.entries[0].RowNumber != 3 {
		t.Fatalf("expected first error on row 3, got %v", logs.entries[0].RowNumber)
	}
	if len(units.requirements) != 2 {
		t.Fatalf("expected 2 stored requirements, got %d", len(units.requirements))
	}
}

func TestImportRejectsUnsupportedFormat(t *testing.T) {
	svc := newImportService(newStubUnitRepo(), &stubImportLogRepo{}, nil)

	_, err := svc.Import(context.Background(), Request{
		RTOID:    uuid.New(),
		UnitCode: "CHCCCS015",
		FileName: "requirements.pdf",
		Data:     strings.NewReader("not a table"),
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	svc := newImportService(newStubUnitRepo(), &stubImportLogRepo{}, nil)

	_, err := svc.Import(context.Background(), Request{
		RTOID:    uuid.New(),
		UnitCode: "CHCCCS015",
		FileName: "requirements.csv",
		Data:     strings.NewReader("alpha,beta\n1,2\n"),
	})
	if err == nil || !strings.Contains(err.Error(), "missing required columns") {
		t.Fatalf("expected missing-columns error, got %v", err)
	}
}

func TestImportIsIdempotentPerRequirement(t *testing.T) {
	units := newStubUnitRepo()
	svc := newImportService(units, &stubImportLogRepo{}, nil)

	req := Request{
		RTOID:    uuid.New(),
		UnitCode: "CHCCCS015",
		FileName: "requirements.csv",
	}

	req.Data = strings.NewReader(sampleCSV)
	if _, err := svc.Import(context.Background(), req); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	req.Data = strings.NewReader(sampleCSV)
	if _, err := svc.Import(context.Background(), req); err != nil {
		t.Fatalf("second import failed: %v", err)
	}

	if len(units.requirements) != 3 {
		t.Fatalf("expected re-import to upsert in place, got %d rows", len(units.requirements))
	}
}
