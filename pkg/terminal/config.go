package terminal

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/xux-core/kdbg/pkg/config"
)

func configureCmd(t *Term, args string) error {
	switch args {
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return errors.New("wrong number of arguments to \"config\"")
	default:
		return configureSet(t, args)
	}
}

type configureIterator struct {
	cfgValue reflect.Value
	cfgType  reflect.Type
	i        int
}

func iterateConfiguration(conf *config.Config) *configureIterator {
	cfgValue := reflect.ValueOf(conf).Elem()
	return &configureIterator{cfgValue, cfgValue.Type(), -1}
}

func (it *configureIterator) Next() bool {
	it.i++
	return it.i < it.cfgValue.NumField()
}

func (it *configureIterator) Field() (name string, field reflect.Value) {
	name = it.cfgType.Field(it.i).Tag.Get("yaml")
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	field = it.cfgValue.Field(it.i)
	return
}

func configureFindFieldByName(conf *config.Config, name string) reflect.Value {
	it := iterateConfiguration(conf)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == name {
			return field
		}
	}
	return reflect.Value{}
}

func configureList(t *Term) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)

	it := iterateConfiguration(t.conf)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == "" || fieldName == "aliases" {
			continue
		}
		switch {
		case field.Kind() == reflect.Ptr && field.IsNil():
			fmt.Fprintf(w, "%s\t<not defined>\n", fieldName)
		case field.Kind() == reflect.Ptr:
			fmt.Fprintf(w, "%s\t%v\n", fieldName, field.Elem())
		default:
			fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
		}
	}
	for cmd, aliases := range t.conf.Aliases {
		fmt.Fprintf(w, "alias %s\t%s\n", cmd, strings.Join(aliases, " "))
	}
	return w.Flush()
}

func configureSet(t *Term, args string) error {
	v := strings.SplitN(args, " ", 2)

	cfgname := v[0]
	var rest string
	if len(v) == 2 {
		rest = strings.TrimSpace(v[1])
	}

	switch cfgname {
	case "alias":
		return configureSetAlias(t, rest)
	case "pretty-print-types":
		return configureSetPrettyPrintTypes(t, rest)
	}

	field := configureFindFieldByName(t.conf, cfgname)
	if !field.IsValid() || !field.CanAddr() {
		return fmt.Errorf("%q is not a configuration parameter", cfgname)
	}

	simpleArg := func(typ reflect.Type) (reflect.Value, error) {
		switch typ.Kind() {
		case reflect.Int:
			n, err := strconv.Atoi(rest)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("argument to %q must be a number", cfgname)
			}
			if n < 0 {
				return reflect.Value{}, fmt.Errorf("argument to %q must be a number greater than zero", cfgname)
			}
			return reflect.ValueOf(&n), nil
		case reflect.String:
			if rest == "" {
				return reflect.Value{}, fmt.Errorf("missing argument to %q", cfgname)
			}
			s := reflect.New(typ)
			s.Elem().SetString(rest)
			return s, nil
		default:
			return reflect.Value{}, fmt.Errorf("unsupported type for configuration key %q", cfgname)
		}
	}

	if field.Kind() == reflect.Ptr {
		val, err := simpleArg(field.Type().Elem())
		if err != nil {
			return err
		}
		field.Set(val)
	} else {
		val, err := simpleArg(field.Type())
		if err != nil {
			return err
		}
		field.Set(val.Elem())
	}

	switch cfgname {
	case "color":
		if t.conf.Color != config.ColorNever && t.conf.Color != config.ColorAlways && t.conf.Color != config.ColorAuto {
			t.conf.Color = ""
			return fmt.Errorf("invalid color mode %q, expected never, always or auto", rest)
		}
	case "max-depth":
		if t.sess.Formatter != nil {
			t.sess.Formatter.MaxDepth = *t.conf.MaxDepth
		}
	}
	return nil
}

// configureSetPrettyPrintTypes adds type names to the debug printer.
// Registrations are never removed, the list only grows.
func configureSetPrettyPrintTypes(t *Term, rest string) error {
	names, err := splitArgs(rest)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("missing type names")
	}
	for _, name := range names {
		if !contains(t.conf.PrettyPrintTypes, name) {
			t.conf.PrettyPrintTypes = append(t.conf.PrettyPrintTypes, name)
		}
	}
	if t.sess.Formatter != nil {
		t.sess.Registry.RegisterDebugPrinter(t.sess.Formatter, names...)
	}
	return nil
}

func configureSetAlias(t *Term, rest string) error {
	argv, err := splitArgs(rest)
	if err != nil {
		return err
	}
	switch len(argv) {
	case 1: // delete alias rule
		for k := range t.conf.Aliases {
			v := t.conf.Aliases[k]
			for i := range v {
				if v[i] == argv[0] {
					copy(v[i:], v[i+1:])
					t.conf.Aliases[k] = v[:len(v)-1]
					break
				}
			}
		}
	case 2: // add alias rule
		alias, cmd := argv[1], argv[0]
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[cmd] = append(t.conf.Aliases[cmd], alias)
	default:
		return errors.New("wrong number of arguments to \"config alias\"")
	}
	t.cmds.Merge(t.conf.Aliases)
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
