package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"lexcheck/internal/model"
)

func registerActs(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "ingest-act",
		Method:        http.MethodPost,
		Path:          "/acts",
		Summary:       "Register an act's source text",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body IngestActRequest `json:"body"`
	}) (*struct {
		Body ActResponse `json:"body"`
	}, error) {
		var act model.Act
		var err error
		switch {
		case input.Body.URL != "":
			act, err = cfg.Ingest.IngestURL(ctx, input.Body.Name, input.Body.URL)
		case len(input.Body.Segments) > 0:
			if input.Body.Name == "" {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
			}
			act, err = cfg.Ingest.IngestSegments(ctx, input.Body.Name, input.Body.DocumentID, input.Body.Segments)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "url or segments required", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActResponse `json:"body"`
		}{Body: actResponse(act)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-act",
		Method:      http.MethodGet,
		Path:        "/acts/{act_id}",
		Summary:     "Get act",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActID string `path:"act_id"`
	}) (*struct {
		Body ActResponse `json:"body"`
	}, error) {
		act, err := cfg.Repo.GetAct(ctx, input.ActID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActResponse `json:"body"`
		}{Body: actResponse(act)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "verify-act-citations",
		Method:        http.MethodPost,
		Path:          "/acts/{act_id}/verify",
		Summary:       "Start batch verification against an act",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ActID string            `path:"act_id"`
		Body  StartBatchRequest `json:"body"`
	}) (*struct {
		Body BatchStartedResponse `json:"body"`
	}, error) {
		act, err := cfg.Repo.GetAct(ctx, input.ActID)
		if err != nil {
			return nil, handleError(err)
		}

		ids := input.Body.CitationIDs
		if len(ids) == 0 {
			pending, err := cfg.Repo.ListPendingCitationsByAct(ctx, act.NormKey)
			if err != nil {
				return nil, handleError(err)
			}
			for _, c := range pending {
				ids = append(ids, c.ID)
			}
		}
		if len(ids) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no citations to verify", nil)
		}

		// The run outlives the request; progress travels over the
		// events endpoint and the batch status resource.
		run, err := cfg.Orch.StartBatch(ctx, input.ActID, ids, input.Body.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchStartedResponse `json:"body"`
		}{Body: BatchStartedResponse{BatchID: run.ID, Total: run.Total}}, nil
	})
}

func registerCitations(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "import-citations",
		Method:        http.MethodPost,
		Path:          "/citations",
		Summary:       "Import extracted citations",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ImportCitationsRequest `json:"body"`
	}) (*struct {
		Body ImportCitationsResponse `json:"body"`
	}, error) {
		if len(input.Body.Citations) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "citations required", nil)
		}
		n, err := cfg.Ingest.ImportCitations(ctx, input.Body.Citations)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportCitationsResponse `json:"body"`
		}{Body: ImportCitationsResponse{Imported: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-citation",
		Method:      http.MethodPost,
		Path:        "/citations/{citation_id}/verify",
		Summary:     "Verify a single citation",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		CitationID string              `path:"citation_id"`
		Body       VerifySingleRequest `json:"body"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		actID := input.Body.ActID
		if actID == "" {
			c, err := cfg.Repo.GetCitation(ctx, input.CitationID)
			if err != nil {
				return nil, handleError(err)
			}
			act, err := cfg.Repo.FindActByName(ctx, c.ActName)
			if err != nil {
				return nil, handleError(err)
			}
			actID = act.ID
		}
		res, err := cfg.Orch.VerifyOne(ctx, input.CitationID, actID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResultResponse `json:"body"`
		}{Body: resultResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-citation-result",
		Method:      http.MethodGet,
		Path:        "/citations/{citation_id}/result",
		Summary:     "Latest verification result for a citation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CitationID string `path:"citation_id"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		res, err := cfg.Repo.GetResult(ctx, input.CitationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResultResponse `json:"body"`
		}{Body: resultResponse(res)}, nil
	})
}

func registerBatches(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-batch",
		Method:      http.MethodGet,
		Path:        "/batches/{batch_id}",
		Summary:     "Batch run status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BatchID string `path:"batch_id"`
	}) (*struct {
		Body BatchResponse `json:"body"`
	}, error) {
		run, err := cfg.Repo.GetBatchRun(ctx, input.BatchID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchResponse `json:"body"`
		}{Body: batchResponse(run)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resume-batch",
		Method:        http.MethodPost,
		Path:          "/batches/{batch_id}/resume",
		Summary:       "Resume a failed or stalled batch",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		BatchID string `path:"batch_id"`
	}) (*struct {
		Body BatchResponse `json:"body"`
	}, error) {
		run, err := cfg.Repo.GetBatchRun(ctx, input.BatchID)
		if err != nil {
			return nil, handleError(err)
		}
		go func() {
			if _, err := cfg.Orch.ResumeBatch(context.Background(), input.BatchID); err != nil {
				cfg.Log.Error().Err(err).Str("batch_id", input.BatchID).Msg("resume error")
			}
		}()
		return &struct {
			Body BatchResponse `json:"body"`
		}{Body: batchResponse(run)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-batch",
		Method:      http.MethodPost,
		Path:        "/batches/{batch_id}/cancel",
		Summary:     "Cancel a batch between groups",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		BatchID string `path:"batch_id"`
	}) (*struct {
		Body BatchResponse `json:"body"`
	}, error) {
		if err := cfg.Orch.Cancel(ctx, input.BatchID); err != nil {
			return nil, handleError(err)
		}
		run, err := cfg.Repo.GetBatchRun(ctx, input.BatchID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchResponse `json:"body"`
		}{Body: batchResponse(run)}, nil
	})
}
