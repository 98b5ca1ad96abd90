package embeddings

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// EmbedStreamMethod is the full gRPC method name of TEI's streaming embed call.
const EmbedStreamMethod = "/tei.v1.Embed/EmbedStream"

// embedStreamDesc describes the bidirectional EmbedStream call.
var embedStreamDesc = &grpc.StreamDesc{
	StreamName:    "EmbedStream",
	ClientStreams: true,
	ServerStreams: true,
}

// teiSchema holds the subset of the tei.v1 protocol this client speaks:
//
//	message EmbedRequest  { string inputs = 1; bool truncate = 2; bool normalize = 3; }
//	message EmbedResponse { repeated float embeddings = 1; }
//
// Fields the server sends beyond these (metadata) are kept as unknown fields
// and ignored.
type teiSchema struct {
	request    protoreflect.MessageDescriptor
	response   protoreflect.MessageDescriptor
	inputs     protoreflect.FieldDescriptor
	truncate   protoreflect.FieldDescriptor
	normalize  protoreflect.FieldDescriptor
	embeddings protoreflect.FieldDescriptor
}

var tei = mustTEISchema()

func mustTEISchema() *teiSchema {
	s, err := newTEISchema()
	if err != nil {
		panic(fmt.Sprintf("embeddings: building tei.v1 descriptors: %v", err))
	}
	return s
}

func newTEISchema() (*teiSchema, error) {
	scalar := func(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type, label descriptorpb.FieldDescriptorProto_Label) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(name),
			Number:   proto.Int32(num),
			Type:     typ.Enum(),
			Label:    label.Enum(),
		}
	}
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED

	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("ragserve/tei/v1/embed.proto"),
		Package: proto.String("tei.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("EmbedRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("inputs", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, optional),
					scalar("truncate", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL, optional),
					scalar("normalize", 3, descriptorpb.FieldDescriptorProto_TYPE_BOOL, optional),
				},
			},
			{
				Name: proto.String("EmbedResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("embeddings", 1, descriptorpb.FieldDescriptorProto_TYPE_FLOAT, repeated),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Embed"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:            proto.String("EmbedStream"),
				InputType:       proto.String(".tei.v1.EmbedRequest"),
				OutputType:      proto.String(".tei.v1.EmbedResponse"),
				ClientStreaming: proto.Bool(true),
				ServerStreaming: proto.Bool(true),
			}},
		}},
	}

	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		return nil, err
	}

	req := fd.Messages().ByName("EmbedRequest")
	resp := fd.Messages().ByName("EmbedResponse")
	return &teiSchema{
		request:    req,
		response:   resp,
		inputs:     req.Fields().ByName("inputs"),
		truncate:   req.Fields().ByName("truncate"),
		normalize:  req.Fields().ByName("normalize"),
		embeddings: resp.Fields().ByName("embeddings"),
	}, nil
}

func (s *teiSchema) newRequest(input string, normalize bool) *dynamicpb.Message {
	m := dynamicpb.NewMessage(s.request)
	m.Set(s.inputs, protoreflect.ValueOfString(input))
	m.Set(s.truncate, protoreflect.ValueOfBool(false))
	m.Set(s.normalize, protoreflect.ValueOfBool(normalize))
	return m
}

func (s *teiSchema) newResponse() *dynamicpb.Message {
	return dynamicpb.NewMessage(s.response)
}

func (s *teiSchema) vector(resp *dynamicpb.Message) []float32 {
	list := resp.Get(s.embeddings).List()
	v := make([]float32, list.Len())
	for i := range v {
		v[i] = float32(list.Get(i).Float())
	}
	return v
}
