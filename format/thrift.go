package format

import (
	"context"
	"io"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/hexbee-net/errors"
)

type thriftReader interface {
	read(ctx context.Context, p thrift.TProtocol) error
}

func readThrift(tr thriftReader, r io.Reader) error {
	// Make sure we are not using any kind of buffered reader here.
	// bufio.Reader "can" read ahead, past the end of the structure.
	transport := &thrift.StreamTransport{Reader: r}
	proto := thrift.NewTCompactProtocolConf(transport, &thrift.TConfiguration{})

	return tr.read(context.Background(), proto)
}

type thriftWriter interface {
	write(ctx context.Context, p thrift.TProtocol) error
}

func writeThrift(tw thriftWriter, w io.Writer) error {
	ctx := context.Background()
	transport := &thrift.StreamTransport{Writer: w}
	proto := thrift.NewTCompactProtocolConf(transport, &thrift.TConfiguration{})

	if err := tw.write(ctx, proto); err != nil {
		return err
	}

	return proto.Flush(ctx)
}

// fieldReader decodes one field of a struct. It returns false for fields it
// does not know, which are then skipped.
type fieldReader func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error)

func readStruct(ctx context.Context, p thrift.TProtocol, fn fieldReader) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}

	for {
		_, typ, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}

		if typ == thrift.STOP {
			break
		}

		ok, err := fn(ctx, p, id, typ)
		if err != nil {
			return errors.WithFields(err, errors.Fields{
				"field-id": id,
			})
		}

		if !ok {
			if err := p.Skip(ctx, typ); err != nil {
				return err
			}
		}

		if err := p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}

	return p.ReadStructEnd(ctx)
}

func readList(ctx context.Context, p thrift.TProtocol, elem thrift.TType, fn func() error) error {
	typ, size, err := p.ReadListBegin(ctx)
	if err != nil {
		return err
	}

	if size < 0 {
		return errors.New("negative list size")
	}

	if size > 0 && typ != elem {
		return errors.WithFields(
			errors.New("unexpected list element type"),
			errors.Fields{
				"expected": elem.String(),
				"actual":   typ.String(),
			})
	}

	for i := 0; i < size; i++ {
		if err := fn(); err != nil {
			return err
		}
	}

	return p.ReadListEnd(ctx)
}

func readStructList[T any, PT interface {
	*T
	thriftReader
}](ctx context.Context, p thrift.TProtocol) ([]*T, error) {
	var res []*T

	err := readList(ctx, p, thrift.STRUCT, func() error {
		v := PT(new(T))
		if err := v.read(ctx, p); err != nil {
			return err
		}

		res = append(res, (*T)(v))

		return nil
	})

	return res, err
}

func writeStruct(ctx context.Context, p thrift.TProtocol, name string, fields func() error) error {
	if err := p.WriteStructBegin(ctx, name); err != nil {
		return err
	}

	if err := fields(); err != nil {
		return err
	}

	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}

	return p.WriteStructEnd(ctx)
}

func writeField(ctx context.Context, p thrift.TProtocol, name string, typ thrift.TType, id int16, value func() error) error {
	if err := p.WriteFieldBegin(ctx, name, typ, id); err != nil {
		return err
	}

	if err := value(); err != nil {
		return err
	}

	return p.WriteFieldEnd(ctx)
}

func writeI32(ctx context.Context, p thrift.TProtocol, name string, id int16, v int32) error {
	return writeField(ctx, p, name, thrift.I32, id, func() error {
		return p.WriteI32(ctx, v)
	})
}

func writeI64(ctx context.Context, p thrift.TProtocol, name string, id int16, v int64) error {
	return writeField(ctx, p, name, thrift.I64, id, func() error {
		return p.WriteI64(ctx, v)
	})
}

func writeString(ctx context.Context, p thrift.TProtocol, name string, id int16, v string) error {
	return writeField(ctx, p, name, thrift.STRING, id, func() error {
		return p.WriteString(ctx, v)
	})
}

func writeStructList[T thriftWriter](ctx context.Context, p thrift.TProtocol, name string, id int16, items []T) error {
	return writeField(ctx, p, name, thrift.LIST, id, func() error {
		if err := p.WriteListBegin(ctx, thrift.STRUCT, len(items)); err != nil {
			return err
		}

		for _, item := range items {
			if err := item.write(ctx, p); err != nil {
				return err
			}
		}

		return p.WriteListEnd(ctx)
	})
}
