package log

import "time"

type Log interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Log

	SetLevel(level Level)
	GetLevel() Level
}

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent Level = 101
)

type Field struct {
	Key   string
	Type  FieldType
	Value any
}

// A FieldType indicates which member of the Field union struct should be used
// and how it should be serialized.
type FieldType uint8

const (
	UnknownType FieldType = iota
	BoolType
	ByteStringType
	DurationType
	Float32Type
	IntType
	Int32Type
	StringType
	Uint8Type
	Uint16Type
	Uint32Type
	Uint64Type
	ErrorType
)

func Any(key string, val any) Field {
	return Field{
		Key:   key,
		Type:  UnknownType,
		Value: val,
	}
}

func Bool(key string, val bool) Field {
	return Field{
		Key:   key,
		Type:  BoolType,
		Value: val,
	}
}

func ByteString(key string, val []byte) Field {
	return Field{
		Key:   key,
		Type:  ByteStringType,
		Value: val,
	}
}

func Duration(key string, val time.Duration) Field {
	return Field{
		Key:   key,
		Type:  DurationType,
		Value: val,
	}
}

func Float32(key string, val float32) Field {
	return Field{
		Key:   key,
		Type:  Float32Type,
		Value: val,
	}
}

func Int(key string, val int) Field {
	return Field{
		Key:   key,
		Type:  IntType,
		Value: val,
	}
}

func Int32(key string, val int32) Field {
	return Field{
		Key:   key,
		Type:  Int32Type,
		Value: val,
	}
}

func String(key string, val string) Field {
	return Field{
		Key:   key,
		Type:  StringType,
		Value: val,
	}
}

func Uint8(key string, val uint8) Field {
	return Field{
		Key:   key,
		Type:  Uint8Type,
		Value: val,
	}
}

func Uint16(key string, val uint16) Field {
	return Field{
		Key:   key,
		Type:  Uint16Type,
		Value: val,
	}
}

func Uint32(key string, val uint32) Field {
	return Field{
		Key:   key,
		Type:  Uint32Type,
		Value: val,
	}
}

func Uint64(key string, val uint64) Field {
	return Field{
		Key:   key,
		Type:  Uint64Type,
		Value: val,
	}
}

func Error(val error) Field {
	return Field{
		Key:   "error",
		Type:  ErrorType,
		Value: val,
	}
}
