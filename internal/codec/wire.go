package codec

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
)

// #region methods
const (
	serviceName  = "advisory.v1.Classifier"
	methodImport = "/" + serviceName + "/Import"
	methodCall   = "/" + serviceName + "/Call"
)

// #endregion methods

// #region values

// encodeValue packs v as {"kind": ..., "v": ...}. Integers travel as decimal
// strings so 64-bit values survive the JSON number space.
func encodeValue(v engine.Value) *structpb.Value {
	fields := map[string]*structpb.Value{"kind": structpb.NewStringValue(v.Kind.String())}
	switch v.Kind {
	case engine.KindInt:
		fields["v"] = structpb.NewStringValue(strconv.FormatInt(v.Num, 10))
	case engine.KindFloat:
		fields["v"] = structpb.NewNumberValue(v.Real)
	case engine.KindString:
		fields["v"] = structpb.NewStringValue(v.Str)
	case engine.KindBool:
		fields["v"] = structpb.NewBoolValue(v.Flag)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func decodeValue(pv *structpb.Value) (engine.Value, error) {
	s := pv.GetStructValue()
	if s == nil {
		return engine.Value{}, fmt.Errorf("decode value: not a struct")
	}
	kind := s.Fields["kind"].GetStringValue()
	raw := s.Fields["v"]
	switch kind {
	case engine.KindNone.String():
		return engine.None(), nil
	case engine.KindInt.String():
		n, err := strconv.ParseInt(raw.GetStringValue(), 10, 64)
		if err != nil {
			return engine.Value{}, fmt.Errorf("decode int: %w", err)
		}
		return engine.Int(n), nil
	case engine.KindFloat.String():
		return engine.Float(raw.GetNumberValue()), nil
	case engine.KindString.String():
		return engine.String(raw.GetStringValue()), nil
	case engine.KindBool.String():
		return engine.Bool(raw.GetBoolValue()), nil
	default:
		return engine.Value{}, fmt.Errorf("decode value: unknown kind %q", kind)
	}
}

func encodeArgs(args []engine.Value) *structpb.Value {
	list := make([]*structpb.Value, len(args))
	for i, a := range args {
		list[i] = encodeValue(a)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func decodeArgs(pv *structpb.Value) ([]engine.Value, error) {
	list := pv.GetListValue()
	if list == nil {
		return nil, nil
	}
	out := make([]engine.Value, len(list.Values))
	for i, item := range list.Values {
		v, err := decodeValue(item)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func stringList(ss []string) *structpb.Value {
	list := make([]*structpb.Value, len(ss))
	for i, s := range ss {
		list[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func decodeStrings(pv *structpb.Value) []string {
	var out []string
	for _, item := range pv.GetListValue().GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}

// #endregion values
