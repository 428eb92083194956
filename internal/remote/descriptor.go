// Package remote serves program sessions over gRPC so that analysis can
// run in a separate process from the host. The wire schema is the
// embedded engine.proto, parsed at startup; messages are dynamic.
package remote

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
)

//go:embed engine.proto
var engineProto string

const (
	protoFile = "sable/engine/v1/engine.proto"
	// ServiceName is the fully qualified name of the engine service.
	ServiceName = "sable.engine.v1.Engine"
)

var engineService = sync.OnceValues(func() (*desc.ServiceDescriptor, error) {
	p := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{protoFile: engineProto}),
	}
	fds, err := p.ParseFiles(protoFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", protoFile, err)
	}
	sd := fds[0].FindService(ServiceName)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in %s", ServiceName, protoFile)
	}
	return sd, nil
})

func methodPath(sd *desc.ServiceDescriptor, method string) string {
	return "/" + sd.GetFullyQualifiedName() + "/" + method
}

func str(m *dynamic.Message, field string) string {
	s, _ := m.GetFieldByName(field).(string)
	return s
}

func i32(m *dynamic.Message, field string) int {
	v, _ := m.GetFieldByName(field).(int32)
	return int(v)
}

func flag(m *dynamic.Message, field string) bool {
	b, _ := m.GetFieldByName(field).(bool)
	return b
}

func strs(m *dynamic.Message, field string) []string {
	vs, _ := m.GetFieldByName(field).([]interface{})
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func messages(m *dynamic.Message, field string) []*dynamic.Message {
	vs, _ := m.GetFieldByName(field).([]interface{})
	out := make([]*dynamic.Message, 0, len(vs))
	for _, v := range vs {
		if dm, ok := v.(*dynamic.Message); ok {
			out = append(out, dm)
		}
	}
	return out
}

func addStrs(m *dynamic.Message, field string, vals []string) {
	for _, v := range vals {
		m.AddRepeatedFieldByName(field, v)
	}
}

// nested returns an empty message of the type of field.
func nested(m *dynamic.Message, field string) *dynamic.Message {
	fd := m.GetMessageDescriptor().FindFieldByName(field)
	return dynamic.NewMessage(fd.GetMessageType())
}
