package testutil

import (
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	irVersion    = 7
	opsetVersion = 13
	elemFloat32  = 1
)

// IdentityModel returns a serialized ONNX model with a single Identity node
// mapping a float32 input to a float32 output of the given shape. A negative
// dimension is written as a symbolic "batch" dim.
func IdentityModel(input, output string, dims ...int64) []byte {
	node := appendString(nil, 1, input)
	node = appendString(node, 2, output)
	node = appendString(node, 3, "identity")
	node = appendString(node, 4, "Identity")

	graph := appendMessage(nil, 1, node)
	graph = appendString(graph, 2, "identity_graph")
	graph = appendMessage(graph, 11, valueInfo(input, dims))
	graph = appendMessage(graph, 12, valueInfo(output, dims))

	opset := appendString(nil, 1, "")
	opset = protowire.AppendTag(opset, 2, protowire.VarintType)
	opset = protowire.AppendVarint(opset, opsetVersion)

	var model []byte
	model = protowire.AppendTag(model, 1, protowire.VarintType)
	model = protowire.AppendVarint(model, irVersion)
	model = appendString(model, 2, "ortharness-testutil")
	model = appendMessage(model, 7, graph)
	model = appendMessage(model, 8, opset)

	return model
}

func valueInfo(name string, dims []int64) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		if d < 0 {
			dim = appendString(nil, 2, "batch")
		} else {
			dim = protowire.AppendTag(nil, 1, protowire.VarintType)
			dim = protowire.AppendVarint(dim, uint64(d))
		}
		shape = appendMessage(shape, 1, dim)
	}

	tensor := protowire.AppendTag(nil, 1, protowire.VarintType)
	tensor = protowire.AppendVarint(tensor, elemFloat32)
	tensor = appendMessage(tensor, 2, shape)

	typ := appendMessage(nil, 1, tensor)

	info := appendString(nil, 1, name)
	return appendMessage(info, 2, typ)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
