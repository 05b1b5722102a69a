package httpapi

import (
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const protobufContentType = "application/x-protobuf"

// wantsProtobuf returns true if the client asked for a protobuf body.
func wantsProtobuf(r *http.Request) bool {
	for _, v := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(strings.TrimSpace(v), ";")
		switch mt {
		case protobufContentType, "application/protobuf":
			return true
		}
	}
	return false
}

// statusStruct encodes a status response as a google.protobuf.Struct with
// the same field names as the JSON body.
func statusStruct(s statusResponse) (*structpb.Struct, error) {
	fields := map[string]any{
		"text":     s.Text,
		"category": string(s.Category),
		"running":  s.Running,
	}
	if s.SessionID != "" {
		fields["session_id"] = s.SessionID
	}
	if !s.UpdatedAt.IsZero() {
		fields["updated_at"] = s.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(fields)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
