package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/rs/xid"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/engine"
)

// PoolClient talks to a cache pool service over its local HTTP control
// endpoint
type PoolClient struct {
	address    string
	httpClient *http.Client
}

// NewPoolClient creates a new PoolClient for the service address
// (e.g., "http://127.0.0.1:12030")
func NewPoolClient(address string) *PoolClient {
	return &PoolClient{
		address: address,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (client *PoolClient) control(messageType engine.ControlMessageType, payload interface{}) (*engine.ControlResponse, error) {
	message := engine.ControlMessage{
		Type: messageType,
		ID:   xid.New().String(),
	}

	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, commons.NewParseError("control payload", err)
		}
		message.Payload = payloadBytes
	}

	messageBytes, err := json.Marshal(&message)
	if err != nil {
		return nil, commons.NewParseError("control message", err)
	}

	httpResponse, err := client.httpClient.Post(client.address+"/control", "application/json", bytes.NewReader(messageBytes))
	if err != nil {
		return nil, commons.NewNetworkError(client.address, err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, commons.NewNetworkError(client.address, err)
	}

	response := engine.ControlResponse{}
	err = json.Unmarshal(body, &response)
	if err != nil {
		return nil, commons.NewParseError("control response", err)
	}

	if response.Type == engine.ControlResponseError {
		return nil, commons.CodeToError(response.Message)
	}

	return &response, nil
}

// Init warms the static partition from the service manifest and the
// given extra chunks
func (client *PoolClient) Init(chunks []string) error {
	_, err := client.control(engine.ControlMessageInit, engine.InitRequest{
		Chunks: chunks,
	})
	return err
}

// Prefetch queues a speculative fetch candidate
func (client *PoolClient) Prefetch(resourceRef string, kind string, priority string, trigger string) error {
	_, err := client.control(engine.ControlMessagePrefetch, engine.PrefetchRequest{
		ResourceRef: resourceRef,
		Kind:        kind,
		Priority:    priority,
		Trigger:     trigger,
	})
	return err
}

// PreloadTrack queues a media preload. Returns false when the id is
// already queued or in flight.
func (client *PoolClient) PreloadTrack(id string, resourceRef string, priority string) (bool, error) {
	response, err := client.control(engine.ControlMessagePreloadTrack, engine.PreloadTrackRequest{
		ID:          id,
		ResourceRef: resourceRef,
		Priority:    priority,
	})
	if err != nil {
		return false, err
	}

	result := struct {
		Queued bool `json:"queued"`
	}{}
	err = json.Unmarshal(response.Data, &result)
	if err != nil {
		return false, commons.NewParseError("preload track response", err)
	}

	return result.Queued, nil
}

// PreloadBatch queues multiple media preloads, returning how many were
// newly queued
func (client *PoolClient) PreloadBatch(tracks []engine.PreloadTrackRequest) (int, error) {
	response, err := client.control(engine.ControlMessagePreloadBatch, engine.PreloadBatchRequest{
		Tracks: tracks,
	})
	if err != nil {
		return 0, err
	}

	result := struct {
		Queued int `json:"queued"`
	}{}
	err = json.Unmarshal(response.Data, &result)
	if err != nil {
		return 0, commons.NewParseError("preload batch response", err)
	}

	return result.Queued, nil
}

// CancelPreload cancels a queued or in-flight media preload
func (client *PoolClient) CancelPreload(id string) (bool, error) {
	response, err := client.control(engine.ControlMessageCancelPreload, engine.CancelPreloadRequest{
		ID: id,
	})
	if err != nil {
		return false, err
	}

	result := struct {
		Canceled bool `json:"canceled"`
	}{}
	err = json.Unmarshal(response.Data, &result)
	if err != nil {
		return false, commons.NewParseError("cancel preload response", err)
	}

	return result.Canceled, nil
}

// ClearCache clears one partition, or every partition and the media
// preview cache when the partition is empty
func (client *PoolClient) ClearCache(partition string) error {
	_, err := client.control(engine.ControlMessageClearCache, engine.ClearCacheRequest{
		Partition: partition,
	})
	return err
}

// SetQuality overrides the preload quality level
func (client *PoolClient) SetQuality(quality string) error {
	_, err := client.control(engine.ControlMessageSetQuality, engine.SetQualityRequest{
		Quality: quality,
	})
	return err
}

// SetNetwork pushes a connectivity-change signal to the service
func (client *PoolClient) SetNetwork(request engine.SetNetworkRequest) error {
	_, err := client.control(engine.ControlMessageSetNetwork, request)
	return err
}

// GetStatus returns the engine status snapshot
func (client *PoolClient) GetStatus() (*engine.EngineStatus, error) {
	response, err := client.control(engine.ControlMessageGetStatus, nil)
	if err != nil {
		return nil, err
	}

	status := engine.EngineStatus{}
	err = json.Unmarshal(response.Data, &status)
	if err != nil {
		return nil, commons.NewParseError("status response", err)
	}

	return &status, nil
}

// Resolve fetches a resource through the caching strategies. The
// returned source tells whether the payload came from the cache, the
// network, or a class fallback.
func (client *PoolClient) Resolve(url string, kind string) ([]byte, string, error) {
	httpResponse, err := client.httpClient.Get(fmt.Sprintf("%s/resolve?url=%s&kind=%s", client.address, neturl.QueryEscape(url), neturl.QueryEscape(kind)))
	if err != nil {
		return nil, "", commons.NewNetworkError(client.address, err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, "", commons.NewNetworkError(client.address, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		return nil, "", commons.NewNetworkError(client.address, fmt.Errorf("unexpected status %d", httpResponse.StatusCode))
	}

	return body, httpResponse.Header.Get("X-Cache-Source"), nil
}
