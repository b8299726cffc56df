// The config file schema is a protobuf message built at startup from descriptors, so no generated code has to be
// kept in sync with it. Every scalar field is named after the flag it sets; nested messages only group fields.
// The file uses proto2 syntax so that unset fields are told apart from fields set to their zero value.

package config

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const schemaPackage = "pairs.config"

type fieldType = descriptorpb.FieldDescriptorProto_Type

// field describes an optional scalar field. A non-empty `message` makes it a nested message field instead.
func field(name string, number int32, kind fieldType, message string) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   kind.Enum(),
	}
	if message != "" {
		fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		fd.TypeName = proto.String("." + schemaPackage + "." + message)
	}
	return fd
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// schemaFile describes the config file:
//
//	log    { log_handler_type log_level }
//	sort   { sort_buffer_bytes spill_dir bloom_false_positive_rate partitions }
//	server { address }
//	cli    { input output output_format serve }
func schemaFile() *descriptorpb.FileDescriptorProto {
	const (
		typeString = descriptorpb.FieldDescriptorProto_TYPE_STRING
		typeInt64  = descriptorpb.FieldDescriptorProto_TYPE_INT64
		typeDouble = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		typeBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		typeNested = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("pairs/config.proto"),
		Package: proto.String(schemaPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("Config",
				field("log", 1, typeNested, "LogConfig"),
				field("sort", 2, typeNested, "SortConfig"),
				field("server", 3, typeNested, "ServerConfig"),
				field("cli", 4, typeNested, "CliConfig"),
			),
			message("LogConfig",
				field("log_handler_type", 1, typeString, ""),
				field("log_level", 2, typeString, ""),
			),
			message("SortConfig",
				field("sort_buffer_bytes", 1, typeInt64, ""),
				field("spill_dir", 2, typeString, ""),
				field("bloom_false_positive_rate", 3, typeDouble, ""),
				field("partitions", 4, typeInt64, ""),
			),
			message("ServerConfig",
				field("address", 1, typeString, ""),
			),
			message("CliConfig",
				field("input", 1, typeString, ""),
				field("output", 2, typeString, ""),
				field("output_format", 3, typeString, ""),
				field("serve", 4, typeBool, ""),
			),
		},
	}
}

// configDescriptor returns the descriptor of the top level Config message.
var configDescriptor = sync.OnceValues(func() (protoreflect.MessageDescriptor, error) {
	file, err := protodesc.NewFile(schemaFile(), new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("failed to build config schema: %w", err)
	}
	md := file.Messages().ByName("Config")
	if md == nil {
		return nil, fmt.Errorf("config schema %s has no Config message", file.Path())
	}
	return md, nil
})
