package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lexcheck/internal/compare"
	"lexcheck/internal/index"
	"lexcheck/internal/ingest"
	"lexcheck/internal/match"
	"lexcheck/internal/model"
	"lexcheck/internal/store"
	"lexcheck/internal/verify"
)

const sectionBody = "Whoever dishonours a cheque commits an offence punishable with fine."

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	repo := store.Repo{DB: db}
	matchCfg := model.MatchingConfig{
		ParaphraseThreshold: 0.85,
		SemanticThreshold:   0.50,
		FallbackFloor:       0.40,
		TopK:                5,
		Prefer:              "latest",
		SectionOnlyScore:    90,
	}
	orch := verify.New(verify.Options{
		Repo:       repo,
		Indexes:    index.NewStore(nil, time.Hour),
		Matcher:    match.New(nil, matchCfg),
		Comparator: compare.New(nil, matchCfg),
		Log:        zerolog.Nop(),
		Batch:      model.BatchConfig{GroupSize: 10, GroupWorkers: 1, MaxCallRetry: 1, StaleAfter: time.Minute},
		Matching:   matchCfg,
	})
	handler, err := New(Config{
		Repo:     repo,
		Orch:     orch,
		Ingest:   ingest.NewService(repo, nil, zerolog.Nop()),
		BasePath: "/v0",
		Log:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			db.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func ingestSampleAct(t *testing.T, srv *testServer) ActResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/acts", IngestActRequest{
		Name:       "Sample Act, 1990",
		DocumentID: "doc-act",
		Segments: []model.Segment{
			{Page: 1, Text: "Section 1. Offences."},
			{Page: 1, Text: sectionBody},
		},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("ingest act status %d: %s", res.StatusCode, string(data))
	}
	var act ActResponse
	if err := json.Unmarshal(data, &act); err != nil {
		t.Fatalf("unmarshal act: %v", err)
	}
	return act
}

func importCitations(t *testing.T, srv *testServer, citations []model.Citation) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/citations", ImportCitationsRequest{Citations: citations})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import citations status %d: %s", res.StatusCode, string(data))
	}
}

func TestVerifySingleCitation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	act := ingestSampleAct(t, srv)
	if act.IndexStatus != string(model.IndexStatusNotIndexed) {
		t.Fatalf("index status = %s", act.IndexStatus)
	}

	importCitations(t, srv, []model.Citation{{
		ID:      "cit-1",
		CaseID:  "case-1",
		ActName: "Sample Act, 1990",
		Section: "1",
		Quote:   sectionBody,
	}})

	// No act_id in the body: the act resolves from the citation's name.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/citations/cit-1/verify", VerifySingleRequest{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d: %s", res.StatusCode, string(data))
	}
	var result ResultResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Status != string(model.StatusVerified) {
		t.Errorf("status = %s, want verified", result.Status)
	}
	if result.Similarity != 100 {
		t.Errorf("similarity = %d, want 100", result.Similarity)
	}

	getRes, getData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/citations/cit-1/result", nil)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get result status %d: %s", getRes.StatusCode, string(getData))
	}
	var stored ResultResponse
	if err := json.Unmarshal(getData, &stored); err != nil {
		t.Fatalf("unmarshal stored result: %v", err)
	}
	if stored.Status != result.Status || stored.Similarity != result.Similarity {
		t.Errorf("stored result %+v diverges from verify response %+v", stored, result)
	}
}

func TestBatchVerificationLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	act := ingestSampleAct(t, srv)
	citations := []model.Citation{
		{ID: "cit-1", CaseID: "case-1", ActName: "Sample Act, 1990", Section: "1", Quote: sectionBody},
		{ID: "cit-2", CaseID: "case-1", ActName: "Sample Act, 1990", Section: "1", Quote: sectionBody},
		{ID: "cit-3", CaseID: "case-1", ActName: "Sample Act, 1990", Section: "999", Quote: sectionBody},
	}
	importCitations(t, srv, citations)

	// Empty citation_ids selects every pending citation naming the act.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/acts/"+act.ID+"/verify", StartBatchRequest{CaseID: "case-1"})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start batch status %d: %s", res.StatusCode, string(data))
	}
	var started BatchStartedResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal batch start: %v", err)
	}
	if started.Total != len(citations) {
		t.Fatalf("total = %d, want %d", started.Total, len(citations))
	}

	var run BatchResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		getRes, getData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/batches/"+started.BatchID, nil)
		if getRes.StatusCode != http.StatusOK {
			t.Fatalf("get batch status %d: %s", getRes.StatusCode, string(getData))
		}
		if err := json.Unmarshal(getData, &run); err != nil {
			t.Fatalf("unmarshal batch: %v", err)
		}
		if run.Status == string(model.BatchCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch did not complete, last status %s completed %d/%d", run.Status, run.Completed, run.Total)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if run.Completed != len(citations) {
		t.Errorf("completed = %d, want %d", run.Completed, len(citations))
	}

	// The unknown section lands as an ordinary outcome, not a fault.
	missRes, missData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/citations/cit-3/result", nil)
	if missRes.StatusCode != http.StatusOK {
		t.Fatalf("get cit-3 result status %d: %s", missRes.StatusCode, string(missData))
	}
	var miss ResultResponse
	if err := json.Unmarshal(missData, &miss); err != nil {
		t.Fatalf("unmarshal cit-3 result: %v", err)
	}
	if miss.Status != string(model.StatusSectionNotFound) {
		t.Errorf("cit-3 status = %s, want section_not_found", miss.Status)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/batches/no-such-run", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Errorf("code = %q, want not_found", envelope.Error.Code)
	}
	if envelope.Error.Message == "" {
		t.Error("empty error message")
	}

	badRes, badData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/acts", IngestActRequest{})
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty ingest status %d: %s", badRes.StatusCode, string(badData))
	}
}
