package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/LingByte/LingBridge/pkg/call"
	"github.com/LingByte/LingBridge/pkg/captions"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/media"
	"github.com/LingByte/LingBridge/pkg/signaling"
	"github.com/LingByte/LingBridge/pkg/signdetect"
)

// Demo client: creates a room (or joins one with -join), publishes a WAV file
// as its microphone and prints captions until interrupted.
func main() {
	joinCode := flag.String("join", "", "room code to join; empty creates a new room")
	name := flag.String("name", "demo", "display name")
	wavPath := flag.String("wav", "ringing.wav", "WAV file published as the local microphone")
	flag.Parse()

	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	source, err := media.NewWAVSource(*wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *wavPath, err)
		os.Exit(1)
	}

	userID := uuid.NewString()
	channel := signaling.NewChannel(config.GlobalConfig.Client.RelayURL)
	if err := channel.Connect(userID); err != nil {
		fmt.Fprintf(os.Stderr, "relay connect failed: %v\n", err)
		os.Exit(1)
	}
	defer channel.Close()

	var iceServers []webrtc.ICEServer
	for _, url := range config.GlobalConfig.Client.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	grabber := media.NewLatestFrameGrabber()
	controller := call.NewController(channel, call.Options{
		UserID:      userID,
		DisplayName: *name,
		ICEServers:  iceServers,
		Source:      source,
		Detector:    signdetect.NewClient(config.GlobalConfig.Client.SignDetectURL),
		Grabber:     grabber,
	})

	controller.OnCaption(func(e captions.Event) {
		fmt.Printf("[%s] %s: %s\n", e.Kind, e.SenderName, e.Text)
	})
	controller.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		fmt.Printf("remote track: %s (%s)\n", track.Codec().MimeType, track.Kind())
	})

	done := make(chan struct{})
	controller.OnEnded(func(reason call.EndReason) {
		fmt.Printf("call ended: %s\n", reason)
		close(done)
	})

	ctx := context.Background()
	if *joinCode != "" {
		if err := controller.Join(ctx, *joinCode); err != nil {
			fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("joined room %s\n", *joinCode)
	} else {
		code, err := controller.Start(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("room code: %s (share it with the other party)\n", code)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		controller.End()
		<-done
	case <-done:
	}
}
