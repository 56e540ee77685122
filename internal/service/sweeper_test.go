package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"songforge/internal/config"
	"songforge/internal/entity"
	"songforge/internal/suno"
)

func sweepConfig() config.Config {
	cfg := testConfig()
	cfg.SweepEnabled = true
	cfg.SweepSchedule = "@every 1h"
	cfg.SweepStaleAfter = 60
	cfg.SweepMaxRetries = 3
	return cfg
}

func TestSweepCompletesRenderedSong(t *testing.T) {
	audio := newAudioServer(t, http.StatusOK, []byte("mp3-bytes"))

	repo := newFakeRepo()
	seedSong(repo, "task-1")
	music := &fakeMusic{record: &suno.RecordInfo{TaskID: "task-1", AudioURL: audio.URL}}
	rec := NewReconciler(sweepConfig(), repo, music, &fakeStorage{})
	sweeper := NewSweeper(sweepConfig(), repo, rec)

	sweeper.sweep()

	if repo.song("task-1").Status != entity.SongStatusCompleted {
		t.Errorf("expected completed, got %s", repo.song("task-1").Status)
	}
}

func TestSweepMarksUnknownTaskFailed(t *testing.T) {
	repo := newFakeRepo()
	seedSong(repo, "task-1")
	music := &fakeMusic{recordErr: fmt.Errorf("%w: task-1", suno.ErrTaskNotFound)}
	rec := NewReconciler(sweepConfig(), repo, music, &fakeStorage{})
	sweeper := NewSweeper(sweepConfig(), repo, rec)

	sweeper.sweep()

	song := repo.song("task-1")
	if song.Status != entity.SongStatusFailed {
		t.Errorf("expected failed, got %s", song.Status)
	}
	if song.ErrorMessage == "" {
		t.Error("expected an error message")
	}
}

func TestSweepRetriesThenFails(t *testing.T) {
	repo := newFakeRepo()
	seedSong(repo, "task-1")
	music := &fakeMusic{recordErr: &suno.RejectionError{HTTPStatus: 500, Message: "flaky"}}
	rec := NewReconciler(sweepConfig(), repo, music, &fakeStorage{})
	sweeper := NewSweeper(sweepConfig(), repo, rec)

	// 前两轮只累计重试
	sweeper.sweep()
	if got := repo.song("task-1").Status; got != entity.SongStatusProcessing {
		t.Fatalf("expected processing after first sweep, got %s", got)
	}
	sweeper.sweep()

	// 第三轮达到上限，标记失败
	sweeper.sweep()
	song := repo.song("task-1")
	if song.Status != entity.SongStatusFailed {
		t.Errorf("expected failed after max retries, got %s", song.Status)
	}
}

func TestSweepIgnoresCompletedSongs(t *testing.T) {
	repo := newFakeRepo()
	seedSong(repo, "task-1")
	if _, err := repo.CompleteSong(context.Background(), "task-1", "s", "https://cdn.example.com/a.mp3"); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	music := &fakeMusic{recordErr: fmt.Errorf("%w: task-1", suno.ErrTaskNotFound)}
	rec := NewReconciler(sweepConfig(), repo, music, &fakeStorage{})
	sweeper := NewSweeper(sweepConfig(), repo, rec)

	sweeper.sweep()

	if repo.song("task-1").Status != entity.SongStatusCompleted {
		t.Error("completed song must not be touched by the sweep")
	}
}
