package resultimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/domain/reconcile"
	"github.com/ehr/labimport/internal/domain/worksheet"
	"github.com/ehr/labimport/internal/platform/db"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

// ErrInvalidUpload wraps every problem with the uploaded file or its parse
// options.
var ErrInvalidUpload = errors.New("invalid upload")

const DefaultPreviewRows = 10

type Options struct {
	PreviewRows int
	MaxRows     int
}

type Service struct {
	mappings   *fieldmapping.Service
	worksheets WorksheetGateway
	store      SessionStore
	reconciler *reconcile.Reconciler
	opts       Options
	logger     zerolog.Logger
}

func NewService(mappings *fieldmapping.Service, worksheets WorksheetGateway, store SessionStore, opts Options, logger zerolog.Logger) *Service {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	return &Service{
		mappings:   mappings,
		worksheets: worksheets,
		store:      store,
		reconciler: reconcile.New(worksheetSink{worksheets: worksheets}),
		opts:       opts,
		logger:     logger.With().Str("component", "resultimport").Logger(),
	}
}

type UploadRequest struct {
	File        io.Reader
	FileName    string
	Separator   string
	Quote       string
	Charset     string
	ConceptUUID string
	WorksheetID uuid.UUID
	UserID      string
}

// ImportView is everything a client needs to render the mapping form.
type ImportView struct {
	SessionID            string                         `json:"sessionId"`
	ConceptUUID          string                         `json:"conceptUuid"`
	WorksheetID          uuid.UUID                      `json:"worksheetId"`
	FileName             string                         `json:"fileName"`
	Headers              []spreadsheet.HeaderDescriptor `json:"headers"`
	Columns              []string                       `json:"columns"`
	Preview              [][]string                     `json:"preview"`
	RowCount             int                            `json:"rowCount"`
	PendingCount         int                            `json:"pendingCount"`
	Field                *fieldmapping.FieldView        `json:"field"`
	Mapping              *fieldmapping.ConceptMapping   `json:"mapping"`
	SampleID             string                         `json:"sampleId"`
	PreviousMappingFound bool                           `json:"previousMappingFound"`
	ExpiresAt            time.Time                      `json:"expiresAt"`
}

// StartImport parses the upload, seeds the mapping from any mapping saved
// for the same concept and header shape, and opens a session.
func (s *Service) StartImport(ctx context.Context, req UploadRequest) (*ImportView, error) {
	if req.File == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidUpload)
	}
	if strings.TrimSpace(req.ConceptUUID) == "" {
		return nil, fmt.Errorf("%w: concept is required", ErrInvalidUpload)
	}
	if req.WorksheetID == uuid.Nil {
		return nil, fmt.Errorf("%w: worksheet is required", ErrInvalidUpload)
	}
	sep, err := spreadsheet.ParseRune(req.Separator, ',')
	if err != nil {
		return nil, fmt.Errorf("%w: separator: %v", ErrInvalidUpload, err)
	}
	quote, err := spreadsheet.ParseRune(req.Quote, '"')
	if err != nil {
		return nil, fmt.Errorf("%w: quote: %v", ErrInvalidUpload, err)
	}
	sheet, err := spreadsheet.Parse(req.File, spreadsheet.Options{
		Separator: sep, Quote: quote, Charset: req.Charset, MaxRows: s.opts.MaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	field, err := s.mappings.FieldTree(ctx, req.ConceptUUID)
	if err != nil {
		return nil, err
	}
	pending, err := s.worksheets.ListPending(ctx, req.WorksheetID)
	if err != nil {
		return nil, err
	}

	conceptUUID := field.Concept().UUID
	prior, err := s.mappings.FindPrior(ctx, conceptUUID, sheet.Headers)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:          uuid.New().String(),
		ConceptUUID: conceptUUID,
		WorksheetID: req.WorksheetID,
		FileName:    req.FileName,
		Separator:   string(sep),
		Quote:       string(quote),
		Charset:     req.Charset,
		Headers:     sheet.Headers,
		Rows:        sheet.Rows,
		TenantID:    db.TenantFromContext(ctx),
		CreatedBy:   req.UserID,
		CreatedAt:   time.Now().UTC(),
	}
	if prior != nil {
		sess.Mapping = fieldmapping.Seed(field, prior.FieldMapping.Mapping)
		sess.SampleID = fieldmapping.ReuseSampleID(&prior.FieldMapping, sheet.Headers)
		sess.PreviousMappingID = &prior.ID
	} else {
		sess.Mapping = fieldmapping.Seed(field, nil)
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save import session: %w", err)
	}

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("concept", conceptUUID).
		Str("worksheet", req.WorksheetID.String()).
		Int("rows", len(sheet.Rows)).
		Bool("previous_mapping", prior != nil).
		Msg("result import started")

	return s.view(sess, field, countFor(pending, conceptUUID)), nil
}

// load returns the session when it belongs to the caller's tenant.
func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != db.TenantFromContext(ctx) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// GetImport returns the current state of an open session.
func (s *Service) GetImport(ctx context.Context, id string) (*ImportView, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	field, err := s.mappings.FieldTree(ctx, sess.ConceptUUID)
	if err != nil {
		return nil, err
	}
	pending, err := s.worksheets.ListPending(ctx, sess.WorksheetID)
	if err != nil {
		return nil, err
	}
	return s.view(sess, field, countFor(pending, sess.ConceptUUID)), nil
}

// DiscardImport closes a session without applying anything.
func (s *Service) DiscardImport(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("session_id", id).Msg("result import discarded")
	return nil
}

type SubmitRequest struct {
	Mapping  *fieldmapping.ConceptMapping `json:"mapping"`
	SampleID string                       `json:"sampleId"`
}

type SubmitResult struct {
	Mapping *fieldmapping.Record `json:"fieldMapping"`
	Outcome *reconcile.Outcome   `json:"outcome"`
}

// SubmitMapping validates and stores the mapping, then reconciles the
// session's rows against the worksheet's pending tests. A validation error
// leaves the session open with the submitted mapping.
func (s *Service) SubmitMapping(ctx context.Context, id string, req SubmitRequest) (*SubmitResult, error) {
	token, err := s.store.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.store.Release(context.WithoutCancel(ctx), id, token); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("release import session")
		}
	}()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("session_id", id).Str("concept", sess.ConceptUUID).Logger()

	field, err := s.mappings.FieldTree(ctx, sess.ConceptUUID)
	if err != nil {
		return nil, err
	}
	fm := fieldmapping.FieldMapping{
		Mapping:   req.Mapping,
		Headers:   sess.Headers,
		Separator: sess.Separator,
		Quote:     sess.Quote,
		SampleID:  strings.TrimSpace(req.SampleID),
	}

	sess.Mapping, sess.SampleID = req.Mapping, fm.SampleID
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save import session: %w", err)
	}

	var createdBy *string
	if sess.CreatedBy != "" {
		createdBy = &sess.CreatedBy
	}
	rec, err := s.mappings.Save(ctx, field, fm, createdBy)
	if err != nil {
		var verrs fieldmapping.ValidationErrors
		if errors.As(err, &verrs) {
			log.Info().Int("problems", len(verrs)).Msg("field mapping rejected")
		}
		return nil, err
	}

	items, err := s.worksheets.ListPending(ctx, sess.WorksheetID)
	if err != nil {
		return nil, err
	}
	out, err := s.reconciler.Run(ctx, reconcile.Input{
		Field:   field,
		Mapping: fm,
		Rows:    sess.Rows,
		Items:   pendingItems(items, field),
	})
	if err != nil {
		log.Error().Err(err).Msg("applying imported results failed")
		return nil, err
	}

	if !out.Success() {
		log.Warn().Str("reason", out.Message()).Msg("result import aborted")
		return &SubmitResult{Mapping: rec, Outcome: out}, nil
	}

	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Warn().Err(err).Msg("delete completed import session")
	}
	log.Info().
		Int("updated", out.UpdatedCount).
		Int("warnings", len(out.Warnings())).
		Msg("result import applied")
	return &SubmitResult{Mapping: rec, Outcome: out}, nil
}

func (s *Service) view(sess *Session, field fieldmapping.Field, pending int) *ImportView {
	columns := make([]string, 0, len(sess.Headers)+1)
	for _, h := range sess.Headers {
		columns = append(columns, h.Name)
	}
	columns = append(columns, fieldmapping.DoNotFill)

	return &ImportView{
		SessionID:            sess.ID,
		ConceptUUID:          sess.ConceptUUID,
		WorksheetID:          sess.WorksheetID,
		FileName:             sess.FileName,
		Headers:              sess.Headers,
		Columns:              columns,
		Preview:              spreadsheet.Preview(sess.Rows, s.opts.PreviewRows),
		RowCount:             len(sess.Rows),
		PendingCount:         pending,
		Field:                fieldmapping.View(field),
		Mapping:              sess.Mapping,
		SampleID:             sess.SampleID,
		PreviousMappingFound: sess.PreviousMappingID != nil,
		ExpiresAt:            sess.ExpiresAt,
	}
}

func countFor(items []*worksheet.Item, conceptUUID string) int {
	n := 0
	for _, it := range items {
		if it.CanEditResults && it.ConceptUUID == conceptUUID {
			n++
		}
	}
	return n
}
