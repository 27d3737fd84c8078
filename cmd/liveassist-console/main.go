// Command liveassist-console joins a live assistance session from the
// terminal: it streams microphone audio through speech recognition, mirrors
// the transcript to the backend, and renders paragraphs and AI answers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
	"github.com/liveassist-ai/liveassist-go/pkg/history"
	"github.com/liveassist-ai/liveassist-go/pkg/voice/mic"
	"github.com/liveassist-ai/liveassist-go/pkg/voice/stt"
	liveassist "github.com/liveassist-ai/liveassist-go/sdk"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "liveassist-console:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		sessionID = flag.String("session", "", "session id to join (required)")
		joinCode  = flag.String("code", "", "join code for the session (required)")
		role      = flag.String("role", string(types.RoleHost), "participant role: host, guest or solo")
		noAudio   = flag.Bool("no-audio", false, "skip microphone capture and recognition")
		logPath   = flag.String("log", "", "write debug logs to this file")
	)
	flag.Parse()

	if *sessionID == "" || *joinCode == "" {
		flag.Usage()
		return fmt.Errorf("both -session and -code are required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	apiKey := os.Getenv("LIVEASSIST_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("LIVEASSIST_API_KEY is not set")
	}

	opts := []liveassist.ClientOption{
		liveassist.WithAPIKey(apiKey),
		liveassist.WithLogger(logger),
	}
	if baseURL := os.Getenv("LIVEASSIST_BASE_URL"); baseURL != "" {
		opts = append(opts, liveassist.WithBaseURL(baseURL))
	}
	client := liveassist.NewClient(opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := client.Live.Connect(ctx, &liveassist.ConnectRequest{
		SessionID: *sessionID,
		JoinCode:  *joinCode,
		Role:      types.Role(*role),
	})
	cancel()
	if err != nil {
		return err
	}
	defer session.Close()

	var voice *voicePipeline
	if !*noAudio {
		cartesiaKey := os.Getenv("CARTESIA_API_KEY")
		if cartesiaKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is not set (or pass -no-audio)")
		}
		voice, err = startVoice(context.Background(), stt.NewCartesia(cartesiaKey), session, logger)
		if err != nil {
			return fmt.Errorf("start voice pipeline: %w", err)
		}
		defer voice.Close()
	}

	store, err := history.Open(history.DefaultDBPath())
	if err != nil {
		logger.Warn("history archive unavailable", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	program := tea.NewProgram(newModel(session, store), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}

// voicePipeline ties the microphone to a recognition stream and forwards
// final fragments into the session.
type voicePipeline struct {
	capture *mic.Capture
	stream  stt.Stream
}

func startVoice(ctx context.Context, provider stt.Provider, session *liveassist.LiveSession, logger *slog.Logger) (*voicePipeline, error) {
	stream, err := provider.NewStream(ctx, stt.Options{
		SampleRate: mic.SampleRate,
		Source:     types.SourceMicrophone,
	})
	if err != nil {
		return nil, err
	}

	capture, err := mic.Open(func(pcm []byte) {
		if err := stream.SendAudio(pcm); err != nil {
			logger.Debug("drop audio frame", "error", err)
		}
	})
	if err != nil {
		stream.Close()
		return nil, err
	}
	if err := capture.Start(); err != nil {
		capture.Close()
		stream.Close()
		return nil, err
	}

	go func() {
		for fragment := range stream.Fragments() {
			if err := session.SendFragment(fragment); err != nil {
				logger.Debug("send fragment", "error", err)
			}
		}
	}()

	return &voicePipeline{capture: capture, stream: stream}, nil
}

func (v *voicePipeline) Close() {
	_ = v.capture.Close()
	_ = v.stream.Close()
}
