package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/utils"
)

func makeOriginServer(t *testing.T) *httptest.Server {
	t.Helper()

	mediaBytes := bytes.Repeat([]byte{0xAB}, 2*1024*1024)

	mux := http.NewServeMux()
	mux.HandleFunc("/static/app.js", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/javascript")
		writer.Write([]byte("console.log('app')"))
	})
	mux.HandleFunc("/api/feed", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"items":[1,2,3]}`))
	})
	mux.HandleFunc("/media/track1.mp3", func(writer http.ResponseWriter, request *http.Request) {
		http.ServeContent(writer, request, "track1.mp3", time.Time{}, bytes.NewReader(mediaBytes))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func makeTestEngine(t *testing.T, originURL string) *Engine {
	t.Helper()

	config := commons.NewDefaultConfig()
	config.DataRootPath = t.TempDir()
	config.OriginURL = originURL
	config.PreloadBackoffBase = utils.Duration(time.Millisecond)

	testEngine, err := NewEngine(config)
	require.NoError(t, err)

	t.Cleanup(testEngine.Release)

	return testEngine
}

func makeControlMessage(t *testing.T, messageType ControlMessageType, id string, payload interface{}) ControlMessage {
	t.Helper()

	message := ControlMessage{
		Type: messageType,
		ID:   id,
	}

	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		require.NoError(t, err)
		message.Payload = payloadBytes
	}

	return message
}

func TestEngineInterceptNonGET(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	_, handled, err := testEngine.Intercept(context.Background(), Request{
		URL:    "/api/feed",
		Method: http.MethodPost,
	})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestEngineInterceptCachesStatic(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	// first resolution blocks on the network
	response, handled, err := testEngine.Intercept(context.Background(), Request{
		URL:    "/static/app.js",
		Method: http.MethodGet,
		Kind:   ResourceKindScript,
	})
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, ResponseSourceNetwork, response.Source)
	assert.Equal(t, []byte("console.log('app')"), response.Payload)

	// the second one is served from the cache
	response, _, err = testEngine.Intercept(context.Background(), Request{
		URL:    "/static/app.js",
		Method: http.MethodGet,
		Kind:   ResourceKindScript,
	})
	require.NoError(t, err)
	assert.Equal(t, ResponseSourceCache, response.Source)
}

func TestEngineInterceptFallsBackOffline(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)
	server.Close()

	response, handled, err := testEngine.Intercept(context.Background(), Request{
		URL:    "/images/cover.png",
		Method: http.MethodGet,
		Kind:   ResourceKindImage,
	})
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, ResponseSourceFallback, response.Source)
	assert.Equal(t, "image/png", response.ContentType)
}

func TestEngineControlInit(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	response := testEngine.Control(makeControlMessage(t, ControlMessageInit, "m1", InitRequest{
		Chunks: []string{"/static/app.js", "not-a-path"},
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)
	assert.Equal(t, "m1", response.ID)

	// the valid chunk is warmed into the static partition
	require.Eventually(t, func() bool {
		status, err := testEngine.GetStatus()
		if err != nil {
			return false
		}

		for _, partition := range status.Partitions {
			if partition.Name == "static" && partition.Count == 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineControlInitBadManifestFile(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)

	manifestPath := utils.JoinPath(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte("{broken"), 0o644))

	config := commons.NewDefaultConfig()
	config.DataRootPath = t.TempDir()
	config.OriginURL = server.URL
	config.ManifestPath = manifestPath

	testEngine, err := NewEngine(config)
	require.NoError(t, err)
	t.Cleanup(testEngine.Release)

	// a broken manifest file is skipped, the payload chunks still warm up
	response := testEngine.Control(makeControlMessage(t, ControlMessageInit, "m1", InitRequest{
		Chunks: []string{"/static/app.js"},
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)

	result := struct {
		Queued int `json:"queued"`
	}{}
	require.NoError(t, json.Unmarshal(response.Data, &result))
	assert.Equal(t, 1, result.Queued)
}

func TestEngineControlPreloadTrack(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	completed := make(chan PreloadEvent, 1)
	testEngine.GetPreloadQueue().AddEventListener(func(event PreloadEvent) {
		completed <- event
	})

	response := testEngine.Control(makeControlMessage(t, ControlMessagePreloadTrack, "m1", PreloadTrackRequest{
		ID:          "track-1",
		ResourceRef: "/media/track1.mp3",
		Priority:    "high",
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)

	select {
	case event := <-completed:
		assert.Equal(t, PreloadEventCompleted, event.Type)
		assert.Equal(t, "track-1", event.ID)
		assert.Equal(t, int(commons.PreviewBytesDefault), event.Size)
		assert.Equal(t, int64(2*1024*1024), event.TotalSize)
	case <-time.After(5 * time.Second):
		t.Fatal("preload did not complete")
	}

	status, err := testEngine.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, status.MediaEntries)
}

func TestEngineControlPreloadBatchAndCancel(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	response := testEngine.Control(makeControlMessage(t, ControlMessagePreloadBatch, "m1", PreloadBatchRequest{
		Tracks: []PreloadTrackRequest{
			{ID: "track-1", ResourceRef: "/media/track1.mp3"},
			{ID: "", ResourceRef: "/media/bad.mp3"}, // skipped
		},
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)

	result := struct {
		Queued int `json:"queued"`
	}{}
	require.NoError(t, json.Unmarshal(response.Data, &result))
	assert.Equal(t, 1, result.Queued)

	// canceling an unknown id reports false, not an error
	response = testEngine.Control(makeControlMessage(t, ControlMessageCancelPreload, "m2", CancelPreloadRequest{
		ID: "unknown",
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)

	cancelResult := struct {
		Canceled bool `json:"canceled"`
	}{}
	require.NoError(t, json.Unmarshal(response.Data, &cancelResult))
	assert.False(t, cancelResult.Canceled)
}

func TestEngineControlClearCache(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	_, _, err := testEngine.Intercept(context.Background(), Request{
		URL:    "/static/app.js",
		Method: http.MethodGet,
		Kind:   ResourceKindScript,
	})
	require.NoError(t, err)

	response := testEngine.Control(makeControlMessage(t, ControlMessageClearCache, "m1", nil))
	require.Equal(t, ControlResponseSuccess, response.Type)

	status, err := testEngine.GetStatus()
	require.NoError(t, err)
	for _, partition := range status.Partitions {
		assert.Equal(t, 0, partition.Count)
	}
	assert.Equal(t, 0, status.MediaEntries)
}

func TestEngineControlSetNetwork(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	response := testEngine.Control(makeControlMessage(t, ControlMessageSetNetwork, "m1", SetNetworkRequest{
		EffectiveClass: "3g",
		DataSaver:      false,
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)

	assert.Equal(t, 2, testEngine.GetNetworkMonitor().GetConcurrencyCeiling())
	assert.False(t, testEngine.GetNetworkMonitor().IsMediaPrefetchAllowed())
}

func TestEngineControlSetQuality(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	response := testEngine.Control(makeControlMessage(t, ControlMessageSetQuality, "m1", SetQualityRequest{
		Quality: "low",
	}))
	require.Equal(t, ControlResponseSuccess, response.Type)
	assert.Equal(t, MediaQualityLow, testEngine.GetPreloadQueue().GetQuality())

	response = testEngine.Control(makeControlMessage(t, ControlMessageSetQuality, "m2", SetQualityRequest{
		Quality: "ultra",
	}))
	require.Equal(t, ControlResponseError, response.Type)
	assert.True(t, commons.IsParseError(commons.CodeToError(response.Message)))
}

func TestEngineControlUnknownType(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	response := testEngine.Control(ControlMessage{Type: "BOGUS", ID: "m1"})
	assert.Equal(t, ControlResponseError, response.Type)
	assert.Equal(t, "m1", response.ID)
}

func TestEngineStatusSnapshot(t *testing.T) {
	t.Parallel()

	server := makeOriginServer(t)
	testEngine := makeTestEngine(t, server.URL)

	response := testEngine.Control(makeControlMessage(t, ControlMessageGetStatus, "m1", nil))
	require.Equal(t, ControlResponseSuccess, response.Type)

	status := EngineStatus{}
	require.NoError(t, json.Unmarshal(response.Data, &status))

	assert.NotEmpty(t, status.Version)
	assert.NotEmpty(t, status.InstanceID)
	assert.Len(t, status.Partitions, 5)
	assert.Equal(t, NetworkClass4G, status.Network.Info.EffectiveClass)
}
