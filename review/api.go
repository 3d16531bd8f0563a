package review

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jonwraymond/annosync/transport"
)

// Service is the backend surface the Client consumes. *API implements it
// over HTTP; tests substitute an in-memory fake.
type Service interface {
	ListPrinciples(ctx context.Context) ([]Principle, error)
	GetPrinciple(ctx context.Context, id string) (Principle, error)
	UpdatePrinciple(ctx context.Context, id string, patch PrinciplePatch) (Principle, error)
	ListSamples(ctx context.Context, principleID string, showRevised bool) (SamplePage, error)
	UpdateOpinion(ctx context.Context, sampleID, expertOpinion string) (Sample, error)
	SetRevision(ctx context.Context, sampleID string, isRevised bool, reviserName string) (Sample, error)
	ReassignSample(ctx context.Context, sampleID, targetPrincipleID, reviserName string) (Sample, error)
}

// API binds the review REST endpoints to a transport client.
type API struct {
	http *transport.Client
}

// NewAPI creates the REST bindings.
func NewAPI(client *transport.Client) *API {
	return &API{http: client}
}

type principlesEnvelope struct {
	Principles []Principle `json:"principles"`
}

type principleEnvelope struct {
	Principle Principle `json:"principle"`
}

type sampleEnvelope struct {
	Sample Sample `json:"sample"`
}

func (a *API) ListPrinciples(ctx context.Context) ([]Principle, error) {
	var out principlesEnvelope
	if err := a.http.Get(ctx, "/principles", &out); err != nil {
		return nil, err
	}
	return out.Principles, nil
}

func (a *API) GetPrinciple(ctx context.Context, id string) (Principle, error) {
	var out principleEnvelope
	if err := a.http.Get(ctx, "/principles/"+url.PathEscape(id), &out); err != nil {
		return Principle{}, err
	}
	return out.Principle, nil
}

func (a *API) UpdatePrinciple(ctx context.Context, id string, patch PrinciplePatch) (Principle, error) {
	var out principleEnvelope
	if err := a.http.Patch(ctx, "/principles/"+url.PathEscape(id), patch, &out); err != nil {
		return Principle{}, err
	}
	return out.Principle, nil
}

func (a *API) ListSamples(ctx context.Context, principleID string, showRevised bool) (SamplePage, error) {
	path := fmt.Sprintf("/principles/%s/samples?show_revised=%s",
		url.PathEscape(principleID), strconv.FormatBool(showRevised))
	var out SamplePage
	if err := a.http.Get(ctx, path, &out); err != nil {
		return SamplePage{}, err
	}
	return out, nil
}

func (a *API) UpdateOpinion(ctx context.Context, sampleID, expertOpinion string) (Sample, error) {
	body := map[string]string{"expert_opinion": expertOpinion}
	var out sampleEnvelope
	if err := a.http.Patch(ctx, "/samples/"+url.PathEscape(sampleID)+"/opinion", body, &out); err != nil {
		return Sample{}, err
	}
	return out.Sample, nil
}

func (a *API) SetRevision(ctx context.Context, sampleID string, isRevised bool, reviserName string) (Sample, error) {
	body := map[string]any{"is_revised": isRevised, "reviser_name": reviserName}
	var out sampleEnvelope
	if err := a.http.Patch(ctx, "/samples/"+url.PathEscape(sampleID)+"/revision", body, &out); err != nil {
		return Sample{}, err
	}
	return out.Sample, nil
}

func (a *API) ReassignSample(ctx context.Context, sampleID, targetPrincipleID, reviserName string) (Sample, error) {
	body := map[string]string{
		"target_principle_id": targetPrincipleID,
		"reviser_name":        reviserName,
	}
	var out sampleEnvelope
	if err := a.http.Patch(ctx, "/samples/"+url.PathEscape(sampleID)+"/reassign", body, &out); err != nil {
		return Sample{}, err
	}
	return out.Sample, nil
}

var _ Service = (*API)(nil)
