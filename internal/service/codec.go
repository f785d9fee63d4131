package service

import (
	"encoding/json"
	"fmt"
)

// jsonCodec serializes the plain Go messages of this package. It replaces
// Connect's default "json" codec, which only handles protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
