package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: wasm-admin <command> [flags]")
	for name := range commands() {
		assert.Contains(t, out, "  "+name)
	}
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("backup-storage")), bytes.Index(buf.Bytes(), []byte("verify-backup")))
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"--timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"--status"})
	require.NoError(t, err)
	assert.True(t, opts.Status)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestPrintPending(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPending(&buf, nil))
	assert.Equal(t, "schema is up to date\n", buf.String())

	buf.Reset()
	require.NoError(t, printPending(&buf, []string{"0001_init", "0002_steps"}))
	assert.Equal(t, "pending 0001_init\npending 0002_steps\n", buf.String())
}

func TestParseListFlags(t *testing.T) {
	opts, err := parseListFlags("list-jobs", []string{"--app", " Shop.Example.com ", "--limit", "5"})
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", opts.AppID)
	assert.Equal(t, 5, opts.Limit)

	_, err = parseListFlags("list-jobs", []string{"--limit", "0"})
	require.Error(t, err)
}

func TestSingleArg(t *testing.T) {
	id, err := singleArg("verify-backup", []string{"b-1"})
	require.NoError(t, err)
	assert.Equal(t, "b-1", id)

	_, err = singleArg("verify-backup", nil)
	require.Error(t, err)
	_, err = singleArg("verify-backup", []string{"a", "b"})
	require.Error(t, err)
}

func TestRenderJobs(t *testing.T) {
	job := testutil.NewJob(testutil.NewSubmitRequest().Build())
	job.ID = "job-1"
	job.Status = model.JobStatusFailed
	job.ErrorKind = "integration"
	job.RolledBack = true
	job.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := job.CreatedAt.Add(time.Second)
	job.StartedAt = &started

	var buf bytes.Buffer
	require.NoError(t, renderJobs(&buf, []*model.Job{job}, started.Add(45*time.Second)))

	out := buf.String()
	assert.Contains(t, out, "OPERATION")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "shop.example.com")
	assert.Contains(t, out, "integration (rolled back)")
	assert.Contains(t, out, "2026-03-01 12:00:00")
	assert.Contains(t, out, "45s")
}

func TestRenderBackupsAndVerification(t *testing.T) {
	b := testutil.NewBackup("b-1", "shop.example.com", testutil.TestTime())
	b.GitCommit = "0123456789abcdef0123"

	var buf bytes.Buffer
	require.NoError(t, renderBackups(&buf, []*model.Backup{b}))
	assert.Contains(t, buf.String(), "0123456789ab")
	assert.NotContains(t, buf.String(), "0123456789abc")

	buf.Reset()
	require.NoError(t, renderVerification(&buf, &model.VerificationResult{
		BackupID: "b-1",
		Message:  "checksum mismatch",
	}))
	assert.Contains(t, buf.String(), "Backup b-1: INVALID")
	assert.Contains(t, buf.String(), "checksum mismatch")
}

func TestRenderStorage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStorage(&buf, &model.StorageInfo{
		Path:           "/var/backups/wasm",
		BackupCount:    3,
		TotalSizeHuman: "1.5 MB",
		Apps:           []string{"blog.example.com", "shop.example.com"},
	}))
	assert.Contains(t, buf.String(), "Backups: 3")
	assert.Contains(t, buf.String(), "blog.example.com, shop.example.com")
}
