package review

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeService is an in-memory backend. Stats are computed from the full
// unfiltered sample set, like the real server.
type fakeService struct {
	mu         sync.Mutex
	principles map[string]Principle
	order      []string
	samples    map[string]Sample

	listCalls    map[string]int
	opinionCalls []string

	updatePrincipleErr error
	updateOpinionErr   error

	// opinionGate, when non-nil, blocks UpdateOpinion until closed.
	opinionGate chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{
		principles: make(map[string]Principle),
		samples:    make(map[string]Sample),
		listCalls:  make(map[string]int),
	}
}

func (f *fakeService) addPrinciple(p Principle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.principles[p.ID]; !ok {
		f.order = append(f.order, p.ID)
	}
	f.principles[p.ID] = p
}

func (f *fakeService) addSample(s Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[s.ID] = s
}

func (f *fakeService) ListPrinciples(context.Context) ([]Principle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Principle, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.principles[id])
	}
	return out, nil
}

func (f *fakeService) GetPrinciple(_ context.Context, id string) (Principle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principles[id]
	if !ok {
		return Principle{}, errors.New("principle not found")
	}
	return p, nil
}

func (f *fakeService) UpdatePrinciple(_ context.Context, id string, patch PrinciplePatch) (Principle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updatePrincipleErr != nil {
		return Principle{}, f.updatePrincipleErr
	}
	p, ok := f.principles[id]
	if !ok {
		return Principle{}, errors.New("principle not found")
	}
	p = patch.applyTo(p)
	f.principles[id] = p
	return p, nil
}

func (f *fakeService) ListSamples(_ context.Context, principleID string, showRevised bool) (SamplePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[principleID+"/"+strconv.FormatBool(showRevised)]++

	var all []Sample
	for _, s := range f.samples {
		if s.PrincipleID == principleID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	stats := Stats{Total: len(all)}
	for _, s := range all {
		if s.IsRevised {
			stats.RevisedCount++
		}
	}
	if stats.Total > 0 {
		stats.Percentage = float64(stats.RevisedCount) / float64(stats.Total) * 100
	}

	page := SamplePage{Stats: stats}
	for _, s := range all {
		if !showRevised && s.IsRevised {
			continue
		}
		page.Samples = append(page.Samples, s)
	}
	return page, nil
}

func (f *fakeService) UpdateOpinion(_ context.Context, sampleID, expertOpinion string) (Sample, error) {
	f.mu.Lock()
	gate := f.opinionGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.opinionCalls = append(f.opinionCalls, expertOpinion)
	if f.updateOpinionErr != nil {
		return Sample{}, f.updateOpinionErr
	}
	s, ok := f.samples[sampleID]
	if !ok {
		return Sample{}, errors.New("sample not found")
	}
	s.ExpertOpinion = expertOpinion
	f.samples[sampleID] = s
	return s, nil
}

func (f *fakeService) SetRevision(_ context.Context, sampleID string, isRevised bool, reviserName string) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[sampleID]
	if !ok {
		return Sample{}, errors.New("sample not found")
	}
	s.IsRevised = isRevised
	s.ReviserName = reviserName
	now := time.Now()
	s.RevisionTimestamp = &now
	f.samples[sampleID] = s
	return s, nil
}

func (f *fakeService) ReassignSample(_ context.Context, sampleID, targetPrincipleID, reviserName string) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[sampleID]
	if !ok {
		return Sample{}, errors.New("sample not found")
	}
	s.PrincipleID = targetPrincipleID
	s.ReviserName = reviserName
	f.samples[sampleID] = s
	return s, nil
}

var _ Service = (*fakeService)(nil)

func newTestClient(svc Service) *Client {
	return New(Config{Service: svc, OpinionDelay: 20 * time.Millisecond})
}

func samplePage(t *testing.T, c *Client, principleID string, showRevised bool) SamplePage {
	t.Helper()
	e, ok := c.Store().Get(SamplesKey(principleID, showRevised))
	if !ok {
		t.Fatalf("partition (%s, %v) not cached", principleID, showRevised)
	}
	page, ok := e.Data.(SamplePage)
	if !ok {
		t.Fatalf("partition (%s, %v) holds %T", principleID, showRevised, e.Data)
	}
	return page
}

func TestClient_OpinionOptimisticThenEcho(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1", LabelName: "Honesty"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1", ExpertOpinion: "A"})
	c := newTestClient(svc)

	if _, r := c.Samples(context.Background(), "1", true); r.Err != nil {
		t.Fatalf("seed fetch failed: %v", r.Err)
	}

	gate := make(chan struct{})
	svc.mu.Lock()
	svc.opinionGate = gate
	svc.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.UpdateOpinion.Run(context.Background(), UpdateOpinionArgs{SampleID: "s1", ExpertOpinion: "AB"})
		done <- err
	}()

	// The cache must show the new opinion before the network resolves.
	deadline := time.Now().Add(2 * time.Second)
	for {
		page := samplePage(t, c, "1", true)
		if idx := page.find("s1"); idx >= 0 && page.Samples[idx].ExpertOpinion == "AB" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("optimistic opinion never appeared")
		}
		time.Sleep(time.Millisecond)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("UpdateOpinion: %v", err)
	}

	page := samplePage(t, c, "1", true)
	if got := page.Samples[page.find("s1")].ExpertOpinion; got != "AB" {
		t.Errorf("opinion after echo = %q, want AB", got)
	}
	if e, _ := c.Store().Get(SamplesKey("1", true)); !e.Stale {
		t.Error("owning partition not marked stale after opinion commit")
	}
}

func TestClient_OpinionUncachedSampleSkipsOptimistic(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1", ExpertOpinion: "A"})
	c := newTestClient(svc)

	s, err := c.UpdateOpinion.Run(context.Background(), UpdateOpinionArgs{SampleID: "s1", ExpertOpinion: "B"})
	if err != nil {
		t.Fatalf("UpdateOpinion with cold cache: %v", err)
	}
	if s.ExpertOpinion != "B" {
		t.Errorf("echoed opinion = %q, want B", s.ExpertOpinion)
	}
}

func TestClient_FailedRenameRollsBack(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "7", LabelName: "Empathy"})
	c := newTestClient(svc)

	if _, r := c.Principles(context.Background()); r.Err != nil {
		t.Fatalf("seed fetch failed: %v", r.Err)
	}

	svc.mu.Lock()
	svc.updatePrincipleErr = errors.New("server rejected update")
	svc.mu.Unlock()

	next := "Empathy2"
	_, err := c.UpdatePrinciple.Run(context.Background(), UpdatePrincipleArgs{
		ID:    "7",
		Patch: PrinciplePatch{LabelName: &next},
	})
	if err == nil {
		t.Fatal("expected update failure")
	}

	e, ok := c.Store().Get(PrinciplesKey())
	if !ok {
		t.Fatal("principle list missing after rollback")
	}
	list := e.Data.([]Principle)
	if list[0].LabelName != "Empathy" {
		t.Errorf("label after rollback = %q, want Empathy", list[0].LabelName)
	}
	if e.Stale {
		t.Error("failed mutation must not invalidate the list")
	}
}

func TestClient_RenameCommitsEcho(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "7", LabelName: "Empathy"})
	c := newTestClient(svc)

	c.Principles(context.Background())
	c.Principle(context.Background(), "7")

	next := "Compassion"
	p, err := c.UpdatePrinciple.Run(context.Background(), UpdatePrincipleArgs{
		ID:    "7",
		Patch: PrinciplePatch{LabelName: &next},
	})
	if err != nil {
		t.Fatalf("UpdatePrinciple: %v", err)
	}
	if p.LabelName != "Compassion" {
		t.Errorf("echoed label = %q", p.LabelName)
	}

	le, _ := c.Store().Get(PrinciplesKey())
	if got := le.Data.([]Principle)[0].LabelName; got != "Compassion" {
		t.Errorf("list label = %q, want Compassion", got)
	}
	de, _ := c.Store().Get(PrincipleKey("7"))
	if got := de.Data.(Principle).LabelName; got != "Compassion" {
		t.Errorf("detail label = %q, want Compassion", got)
	}
	if le.Stale || de.Stale {
		t.Error("principle update must not invalidate beyond the entries themselves")
	}
}

func TestClient_ReassignInvalidatesAllPartitions(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "A"})
	svc.addPrinciple(Principle{ID: "B"})
	for i := 0; i < 5; i++ {
		svc.addSample(Sample{ID: "a" + strconv.Itoa(i), PrincipleID: "A"})
	}
	for i := 0; i < 3; i++ {
		svc.addSample(Sample{ID: "b" + strconv.Itoa(i), PrincipleID: "B"})
	}
	c := newTestClient(svc)
	ctx := context.Background()

	if page, _ := c.Samples(ctx, "A", true); page.Stats.Total != 5 {
		t.Fatalf("A total = %d, want 5", page.Stats.Total)
	}
	if page, _ := c.Samples(ctx, "B", true); page.Stats.Total != 3 {
		t.Fatalf("B total = %d, want 3", page.Stats.Total)
	}

	if _, err := c.Reassign.Run(ctx, ReassignArgs{SampleID: "a0", TargetPrincipleID: "B", ReviserName: "rey"}); err != nil {
		t.Fatalf("Reassign: %v", err)
	}

	for _, id := range []string{"A", "B"} {
		if e, _ := c.Store().Get(SamplesKey(id, true)); !e.Stale {
			t.Errorf("partition %s not marked stale after reassignment", id)
		}
	}

	pageA, _ := c.Samples(ctx, "A", true)
	pageB, _ := c.Samples(ctx, "B", true)
	if pageA.Stats.Total != 4 || pageB.Stats.Total != 4 {
		t.Errorf("totals after refetch = %d/%d, want 4/4", pageA.Stats.Total, pageB.Stats.Total)
	}
	if sum := pageA.Stats.Total + pageB.Stats.Total; sum != 8 {
		t.Errorf("sample sum = %d, want 8", sum)
	}
}

func TestClient_RevisionInvalidatesOwnerPartitions(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1"})
	svc.addSample(Sample{ID: "s2", PrincipleID: "1"})
	c := newTestClient(svc)
	ctx := context.Background()

	c.Samples(ctx, "1", true)
	c.Samples(ctx, "1", false)

	s, err := c.SetRevision.Run(ctx, SetRevisionArgs{SampleID: "s1", IsRevised: true, ReviserName: "rey"})
	if err != nil {
		t.Fatalf("SetRevision: %v", err)
	}
	if !s.IsRevised || s.RevisionTimestamp == nil {
		t.Error("echo missing revision state")
	}

	for _, show := range []bool{true, false} {
		if e, _ := c.Store().Get(SamplesKey("1", show)); !e.Stale {
			t.Errorf("partition (1, %v) not marked stale", show)
		}
	}

	// Hidden-revised refetch drops the sample but keeps full-set stats.
	page, _ := c.Samples(ctx, "1", false)
	if page.find("s1") >= 0 {
		t.Error("revised sample still visible under hidden filter")
	}
	if page.Stats.Total != 2 || page.Stats.RevisedCount != 1 {
		t.Errorf("stats = %d/%d, want 2/1", page.Stats.Total, page.Stats.RevisedCount)
	}
}

func TestClient_StatsIndependentOfFilter(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1", IsRevised: true})
	svc.addSample(Sample{ID: "s2", PrincipleID: "1"})
	svc.addSample(Sample{ID: "s3", PrincipleID: "1"})
	c := newTestClient(svc)
	ctx := context.Background()

	shown, _ := c.Samples(ctx, "1", true)
	hidden, _ := c.Samples(ctx, "1", false)

	if shown.Stats != hidden.Stats {
		t.Errorf("stats differ across filters: %+v vs %+v", shown.Stats, hidden.Stats)
	}
	if shown.Stats.Total != 3 || shown.Stats.RevisedCount != 1 {
		t.Errorf("stats = %d/%d, want 3/1", shown.Stats.Total, shown.Stats.RevisedCount)
	}
	if len(shown.Samples) != 3 || len(hidden.Samples) != 2 {
		t.Errorf("visible counts = %d/%d, want 3/2", len(shown.Samples), len(hidden.Samples))
	}
}

func TestClient_ObserveSamplesDisabledUntilSelection(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1"})
	c := newTestClient(svc)

	obs := c.ObserveSamples("", true, nil)
	defer obs.Close()

	time.Sleep(20 * time.Millisecond)
	svc.mu.Lock()
	calls := len(svc.listCalls)
	svc.mu.Unlock()
	if calls != 0 {
		t.Fatalf("disabled observer issued %d fetches", calls)
	}

	obs.SetKey(SamplesKey("1", true))

	deadline := time.Now().Add(2 * time.Second)
	for {
		r := obs.Get()
		if page, ok := r.Data.(SamplePage); ok && len(page.Samples) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("selection never loaded")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClient_DraftCoalescesBurst(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1"})
	c := newTestClient(svc)

	draft := c.NewOpinionDraft("s1")
	defer draft.Close()

	for _, v := range []string{"A", "AB", "ABC"} {
		draft.Write(v)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		calls := append([]string(nil), svc.opinionCalls...)
		svc.mu.Unlock()
		if len(calls) > 0 {
			if len(calls) != 1 || calls[0] != "ABC" {
				t.Fatalf("opinion calls = %v, want [ABC]", calls)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("coalesced commit never fired")
		}
		time.Sleep(time.Millisecond)
	}
	if err := draft.Err(); err != nil {
		t.Errorf("draft error = %v", err)
	}
}

func TestClient_DraftCloseFlushes(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1"})
	c := New(Config{Service: svc, OpinionDelay: time.Hour})

	draft := c.NewOpinionDraft("s1")
	draft.Write("final")
	draft.Close()

	svc.mu.Lock()
	calls := append([]string(nil), svc.opinionCalls...)
	svc.mu.Unlock()
	if len(calls) != 1 || calls[0] != "final" {
		t.Errorf("opinion calls = %v, want [final]", calls)
	}
}

func TestClient_DraftSurfacesCommitError(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1"})
	svc.updateOpinionErr = errors.New("boom")
	c := New(Config{Service: svc, OpinionDelay: time.Hour})

	draft := c.NewOpinionDraft("s1")
	draft.Write("x")
	draft.Flush()

	if draft.Err() == nil {
		t.Error("commit error not surfaced")
	}
}

func TestClient_SamplesCachedAcrossCalls(t *testing.T) {
	svc := newFakeService()
	svc.addPrinciple(Principle{ID: "1"})
	svc.addSample(Sample{ID: "s1", PrincipleID: "1"})
	c := newTestClient(svc)
	ctx := context.Background()

	c.Samples(ctx, "1", true)
	c.Samples(ctx, "1", true)

	svc.mu.Lock()
	calls := svc.listCalls["1/true"]
	svc.mu.Unlock()
	if calls != 1 {
		t.Errorf("backend called %d times for a fresh entry, want 1", calls)
	}
}
