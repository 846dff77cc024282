package main

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"contrib-backend/internal/bootstrap"
	"contrib-backend/internal/cluster"
	"contrib-backend/internal/commits"
	"contrib-backend/internal/impact"
	"contrib-backend/internal/joblog"
	"contrib-backend/internal/llm"
	"contrib-backend/internal/queue"
	"contrib-backend/internal/reports"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/runs"
	"contrib-backend/internal/sampling"
	"contrib-backend/internal/scan"
	"contrib-backend/internal/workunits"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type emptyProvider struct{}

func (emptyProvider) ListOrgRepos(ctx context.Context, org string, year int) ([]string, error) {
	return nil, nil
}

func (emptyProvider) ListCommits(ctx context.Context, org, repo, authorLogin string, since, until time.Time) ([]commits.Commit, error) {
	return nil, nil
}

func (emptyProvider) GetCommit(ctx context.Context, org, repo, sha string) (commits.Commit, error) {
	return commits.Commit{}, nil
}

func testApp(t *testing.T) *bootstrap.App {
	t.Helper()
	runsRepo := runs.NewMemoryRepo()
	commitsRepo := commits.NewMemoryRepo()
	unitsRepo := workunits.NewMemoryRepo()
	reviewsRepo := reviews.NewMemoryRepo()

	app := &bootstrap.App{
		RunsRepo:    runsRepo,
		CommitsRepo: commitsRepo,
		UnitsRepo:   unitsRepo,
		ReviewsRepo: reviewsRepo,
		JobLogRepo:  joblog.NewMemoryRepo(),
		ReportsRepo: reports.NewMemoryRepo(),
	}
	app.Scanner = &scan.Scanner{Provider: emptyProvider{}, Commits: commitsRepo}
	app.Orchestrator = &reviews.Orchestrator{
		Reviews: reviewsRepo,
		Units:   unitsRepo,
		Commits: commitsRepo,
		LLM:     llm.PlaceholderClient{},
	}
	app.Builder = &reports.Builder{
		Commits: commitsRepo,
		Units:   unitsRepo,
		Reviews: reviewsRepo,
		Reports: app.ReportsRepo,
	}
	app.Pipeline = &runs.Pipeline{
		Runs:         runsRepo,
		Commits:      commitsRepo,
		Units:        unitsRepo,
		Reviews:      reviewsRepo,
		JobLog:       app.JobLogRepo,
		Builder:      app.Builder,
		Scanner:      app.Scanner,
		Orchestrator: app.Orchestrator,
		Cluster:      cluster.DefaultConfig(),
		Impact:       impact.DefaultConfig(),
		Sampling:     sampling.DefaultConfig(),
	}
	return app
}

func seedRun(t *testing.T, app *bootstrap.App, runID string) {
	t.Helper()
	now := time.Now().UTC()
	err := app.RunsRepo.Create(context.Background(), runs.AnalysisRun{
		ID:          runID,
		Org:         "acme",
		Contributor: "octocat",
		Year:        2024,
		Status:      runs.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t)
	seedRun(t, app, "run-1")
	msgBody, _ := queue.EncodeMessage(queue.Message{RunID: "run-1", RequestID: "req-1"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          aws.String(string(msgBody)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	run, err := app.RunsRepo.GetByID(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != runs.StatusDone {
		t.Fatalf("expected DONE, got %s", run.Status)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t)
	msgBody, _ := queue.EncodeMessage(queue.Message{RunID: "run-missing", RequestID: "req-2"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m2"),
		ReceiptHandle: aws.String("r2"),
		Body:          aws.String(string(msgBody)),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t)
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnMissingRunID(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t)
	msgBody, _ := queue.EncodeMessage(queue.Message{RequestID: "req-4"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String(string(msgBody)),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
