package grpclayer

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	language "github.com/hanpama/compositegraph/internal/language"
)

const (
	// ServiceName is the gRPC service every backend exposes.
	ServiceName = "compositegraph.v1.GraphQL"

	executeMethodName = "Execute"
	executeMethod     = "/" + ServiceName + "/" + executeMethodName

	// SchemaHeader is the outgoing metadata key naming the target schema.
	SchemaHeader = "x-compositegraph-schema"
)

// Requests and responses travel as google.protobuf.Struct:
//
//	request:  {query: string, operationName?: string, variables?: {...}}
//	response: {data: {...} | null, errors?: [{message, path?, extensions?}]}

func encodeRequest(text, operationName string, variables map[string]any) (*structpb.Struct, error) {
	m := map[string]any{"query": text}
	if operationName != "" {
		m["operationName"] = operationName
	}
	if len(variables) > 0 {
		m["variables"] = variables
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return s, nil
}

func decodeRequest(s *structpb.Struct) (text, operationName string, variables map[string]any, err error) {
	fields := s.GetFields()
	q, ok := fields["query"].GetKind().(*structpb.Value_StringValue)
	if !ok || q.StringValue == "" {
		return "", "", nil, fmt.Errorf("%w: missing query", ErrMalformedEnvelope)
	}
	operationName = fields["operationName"].GetStringValue()
	variables = fields["variables"].GetStructValue().AsMap()
	return q.StringValue, operationName, variables, nil
}

func encodeResponse(data map[string]any, errs language.ErrorList) (*structpb.Struct, error) {
	m := map[string]any{"data": nil}
	if data != nil {
		m["data"] = data
	}
	if len(errs) > 0 {
		list, err := plain(errs)
		if err != nil {
			return nil, err
		}
		m["errors"] = list
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return s, nil
}

func decodeResponse(s *structpb.Struct) (map[string]any, language.ErrorList, error) {
	fields := s.GetFields()
	if fields == nil {
		return nil, nil, fmt.Errorf("%w: empty response", ErrMalformedEnvelope)
	}
	var errs language.ErrorList
	if list := fields["errors"].GetListValue(); list != nil && len(list.GetValues()) > 0 {
		raw, err := json.Marshal(list.AsSlice())
		if err != nil {
			return nil, nil, fmt.Errorf("decode errors: %w", err)
		}
		if err := json.Unmarshal(raw, &errs); err != nil {
			return nil, nil, fmt.Errorf("%w: errors: %v", ErrMalformedEnvelope, err)
		}
	}
	var data map[string]any
	if v := fields["data"].GetStructValue(); v != nil {
		data = v.AsMap()
	}
	return data, errs, nil
}

// plain renders errors in their JSON shape so structpb can hold them.
func plain(errs language.ErrorList) ([]any, error) {
	raw, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("encode errors: %w", err)
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode errors: %w", err)
	}
	return out, nil
}
