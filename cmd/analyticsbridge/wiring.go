package main

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-analytics-bridge/pkg/alarms"
	"github.com/illmade-knight/go-analytics-bridge/pkg/backends"
	"github.com/illmade-knight/go-analytics-bridge/pkg/bus"
	"github.com/illmade-knight/go-analytics-bridge/pkg/config"
	"github.com/illmade-knight/go-analytics-bridge/pkg/dispatch"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-analytics-bridge/pkg/mqttconverter"
	"github.com/illmade-knight/go-analytics-bridge/pkg/tool"
	"github.com/illmade-knight/go-analytics-bridge/pkg/watermark"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// busConnection is a bus transport usable as both ends of the pipeline.
type busConnection interface {
	messagepipeline.MessageConsumer
	messagepipeline.SimplePublisher
	Connected() bool
}

func newWatermarkStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (watermark.Store, io.Closer, error) {
	wc := cfg.Watermark
	switch wc.Backend {
	case "memory":
		return watermark.NewInMemoryStore(0), nil, nil
	case "redis":
		store, err := watermark.NewRedisStore(ctx, &watermark.RedisConfig{
			Addr:     wc.Redis.Addr,
			Password: wc.Redis.Password,
			DB:       wc.Redis.DB,
			Key:      wc.Redis.Key,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "firestore":
		client, err := firestore.NewClient(ctx, wc.Firestore.ProjectID, gcpOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store, err := watermark.NewFirestoreStore(&watermark.FirestoreConfig{
			ProjectID:      wc.Firestore.ProjectID,
			CollectionName: wc.Firestore.Collection,
			DocumentID:     wc.Firestore.Document,
		}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client, nil
	default:
		store, err := watermark.NewFileStore(wc.File, logger)
		return store, nil, err
	}
}

func newMediaSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (media.Source, io.Closer, error) {
	if cfg.Media.Backend != "gcs" {
		src, err := media.NewLocalDir(cfg.Media.Dir, logger)
		return src, nil, err
	}
	client, err := storage.NewClient(ctx, gcpOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	src, err := media.NewGCSSource(media.NewGCSClientAdapter(client), media.GCSConfig{
		BucketName:   cfg.Media.Bucket,
		ObjectPrefix: cfg.Media.Prefix,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return src, client, nil
}

func newDependencies(cfg *config.Config, store watermark.Store, source media.Source, logger zerolog.Logger) (dispatch.Dependencies, error) {
	alarmClient, err := alarms.NewClient(alarms.Config{
		Timeout: cfg.Alarms.Timeout,
		Last:    cfg.Alarms.Last,
	}, store, logger)
	if err != nil {
		return dispatch.Dependencies{}, err
	}

	bc := cfg.Backends
	backendClient := backends.NewClient(backends.Config{
		Timeout: bc.Timeout,
		Breaker: backends.BreakerConfig{
			ConsecutiveFailures: bc.Breaker.ConsecutiveFailures,
			MaxRequests:         bc.Breaker.MaxRequests,
			Interval:            bc.Breaker.Interval,
			OpenTimeout:         bc.Breaker.OpenTimeout,
		},
	}, logger)

	return dispatch.Dependencies{
		Alarms:   alarmClient,
		Backends: backendClient,
		Media:    source,
		Tools:    tool.NewExecutor(cfg.Tools.Timeout, logger),
		Endpoints: dispatch.Endpoints{
			Whisper:             bc.Whisper.URL,
			AudioAnomaly:        bc.AudioAnomaly.URL,
			DeviceAnomaly:       bc.DeviceAnomaly.URL,
			ParentalControl:     bc.ParentalControl.URL,
			ObjectRecognition:   bc.ObjectRecognition.URL,
			FaceRecognition:     bc.FaceRecognition.URL,
			SpeakerVerification: bc.SpeakerVerification.URL,
		},
		Commands: dispatch.Commands{
			AUD:               cfg.Tools.AUD,
			DeepSpeech:        cfg.Tools.DeepSpeech,
			DeepSpeechCleanup: cfg.Tools.DeepSpeechCleanup,
		},
		Logger: logger,
	}, nil
}

func newBusConnection(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (busConnection, io.Closer, error) {
	switch cfg.Bus.Transport {
	case "mqtt":
		mc := mqttconverter.LoadMQTTClientConfigFromEnv()
		mc.BrokerURL = cfg.MQTT.BrokerURL
		mc.Topic = cfg.MQTT.Topic
		mc.ResultsTopic = cfg.MQTT.ResultsTopic
		mc.Username = cfg.MQTT.Username
		mc.Password = cfg.MQTT.Password
		conn, err := mqttconverter.NewMqttConnection(mc, logger)
		return conn, nil, err
	case "pubsub":
		return newPubsubBus(ctx, cfg, logger)
	default:
		wc := bus.NewWebsocketDefaults(cfg.Bus.URL)
		wc.InitialBackoff = cfg.Bus.InitialBackoff
		wc.MaxBackoff = cfg.Bus.MaxBackoff
		conn, err := bus.NewWebsocketConnection(wc, logger)
		return conn, nil, err
	}
}

// pubsubBus pairs a subscription consumer with a results topic publisher.
// Stop ends consumption only; the publisher is flushed when the client is
// released, after in-flight frames have been handled.
type pubsubBus struct {
	*messagepipeline.GooglePubsubConsumer
	publisher *messagepipeline.GoogleSimplePublisher
}

func newPubsubBus(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (busConnection, io.Closer, error) {
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, gcpOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	consumer, err := messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(cfg.PubSub.SubscriptionID), client, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	publisher, err := messagepipeline.NewGoogleSimplePublisher(ctx,
		messagepipeline.NewGoogleSimplePublisherDefaults(cfg.PubSub.ResultsTopicID), client, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	release := closerFunc(func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = publisher.Stop(stopCtx)
		return client.Close()
	})
	return &pubsubBus{GooglePubsubConsumer: consumer, publisher: publisher}, release, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (p *pubsubBus) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	return p.publisher.Publish(ctx, payload, attributes)
}

// Connected is always true: the Pub/Sub client reconnects on its own.
func (p *pubsubBus) Connected() bool { return true }

func gcpOptions(cfg *config.Config) []option.ClientOption {
	if cfg.GCP.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCP.CredentialsFile)}
}
