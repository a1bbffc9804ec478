package document

import (
	"fmt"

	"github.com/panbanda/iltrim/pkg/metadata"
)

type flagName[T ~uint8 | ~uint16] struct {
	name string
	flag T
}

var typeFlagNames = []flagName[metadata.TypeFlags]{
	{"interface", metadata.TypeInterface},
	{"abstract", metadata.TypeAbstract},
	{"sealed", metadata.TypeSealed},
	{"valuetype", metadata.TypeValueTypeFlag},
	{"enum", metadata.TypeEnumFlag},
	{"beforefieldinit", metadata.TypeBeforeFieldInit},
	{"sequential", metadata.TypeSequentialLayout},
	{"explicit", metadata.TypeExplicitLayout},
}

var methodFlagNames = []flagName[metadata.MethodFlags]{
	{"static", metadata.MethodStatic},
	{"virtual", metadata.MethodVirtual},
	{"abstract", metadata.MethodAbstract},
	{"newslot", metadata.MethodNewSlot},
	{"final", metadata.MethodFinal},
	{"specialname", metadata.MethodSpecialName},
	{"pinvoke", metadata.MethodPInvoke},
}

var implFlagNames = []flagName[metadata.ImplFlags]{
	{"noinlining", metadata.ImplNoInlining},
	{"aggressiveinlining", metadata.ImplAggressiveInlining},
	{"synchronized", metadata.ImplSynchronized},
	{"internalcall", metadata.ImplInternalCall},
}

var fieldFlagNames = []flagName[metadata.FieldFlags]{
	{"static", metadata.FieldStatic},
	{"literal", metadata.FieldLiteral},
	{"initonly", metadata.FieldInitOnly},
}

var handlerKindNames = map[string]metadata.HandlerKind{
	"catch":   metadata.HandlerCatch,
	"filter":  metadata.HandlerFilter,
	"finally": metadata.HandlerFinally,
	"fault":   metadata.HandlerFault,
}

func parseFlags[T ~uint8 | ~uint16](names []string, table []flagName[T]) (T, error) {
	var out T
	for _, n := range names {
		found := false
		for _, fn := range table {
			if fn.name == n {
				out |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", n)
		}
	}
	return out, nil
}

func formatFlags[T ~uint8 | ~uint16](v T, table []flagName[T]) []string {
	var out []string
	for _, fn := range table {
		if v&fn.flag != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}
