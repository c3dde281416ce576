package captions

import (
	"context"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/media"
)

const (
	defaultLanguageCode = "en-US"
	speechChunkBytes    = 3200 // 200ms of 8kHz 16-bit mono
)

// GoogleRecognizer streams local microphone PCM to Google Cloud
// Speech-to-Text and forwards interim and final transcripts.
type GoogleRecognizer struct {
	audio        io.Reader
	languageCode string
}

// NewGoogleRecognizer reads 8kHz 16-bit mono PCM from audio. languageCode
// defaults to en-US when empty.
func NewGoogleRecognizer(audio io.Reader, languageCode string) *GoogleRecognizer {
	if languageCode == "" {
		languageCode = defaultLanguageCode
	}
	return &GoogleRecognizer{audio: audio, languageCode: languageCode}
}

// Transcripts runs one streaming recognize session. It returns when the
// context is cancelled, the audio source drains, or the stream fails.
func (r *GoogleRecognizer) Transcripts(ctx context.Context, out chan<- string) error {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return classifySpeechErr(err)
	}
	defer client.Close()

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		return classifySpeechErr(err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: media.TargetSampleRate,
					LanguageCode:    r.languageCode,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		return classifySpeechErr(err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- r.pumpAudio(ctx, stream)
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return <-sendErr
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classifySpeechErr(err)
		}
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			select {
			case out <- result.Alternatives[0].Transcript:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *GoogleRecognizer) pumpAudio(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient) error {
	buf := make([]byte, speechChunkBytes)
	for {
		if ctx.Err() != nil {
			return stream.CloseSend()
		}
		n, err := r.audio.Read(buf)
		if n > 0 {
			req := &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: buf[:n],
				},
			}
			if sendErr := stream.Send(req); sendErr != nil {
				return classifySpeechErr(sendErr)
			}
		}
		if err == io.EOF {
			return stream.CloseSend()
		}
		if err != nil {
			return classifySpeechErr(err)
		}
	}
}

// classifySpeechErr maps gRPC permission refusals to the terminal error code
// so the producer stops retrying them.
func classifySpeechErr(err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return apperrors.WrapError(apperrors.ErrCodePermissionDenied, err)
		case codes.ResourceExhausted:
			return apperrors.WrapError(apperrors.ErrCodeRateLimited, err)
		}
	}
	return apperrors.WrapError(apperrors.ErrCodeRecognizerFailed, err)
}
