package parser

import "fmt"

const placeholderKey = "_placeholder"

// reconstruct replaces placeholder objects with the attachment they point to.
func reconstruct(data []Value, attachments [][]byte) ([]Value, error) {
	out := make([]Value, len(data))
	for i, v := range data {
		r, err := reconstructValue(v, attachments)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func reconstructValue(v Value, attachments [][]byte) (Value, error) {
	switch v.Kind() {
	case KindArray:
		items, err := reconstruct(v.arr, attachments)
		if err != nil {
			return Value{}, err
		}
		return Array(items...), nil
	case KindObject:
		if num, ok := placeholderIndex(v); ok {
			if num < 0 || num >= len(attachments) {
				return Value{}, fmt.Errorf("%w: placeholder %d out of range", ErrAttachmentMismatch, num)
			}
			return Binary(attachments[num]), nil
		}
		fields := make(map[string]Value, len(v.obj))
		for k, item := range v.obj {
			r, err := reconstructValue(item, attachments)
			if err != nil {
				return Value{}, err
			}
			fields[k] = r
		}
		return Object(fields), nil
	}
	return v, nil
}

func placeholderIndex(v Value) (int, bool) {
	if len(v.obj) != 2 {
		return 0, false
	}
	if flag, ok := v.obj[placeholderKey].AsBool(); !ok || !flag {
		return 0, false
	}
	n, ok := v.obj["num"].AsInt()
	if !ok {
		return 0, false
	}
	return int(n), true
}
