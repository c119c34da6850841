package reader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadAllAtoms(t *testing.T) {
	r := NewReader("test.lisp")

	forms, err := r.ReadAll(`42 "hi" sym true false nil`)
	require.NoError(t, err)
	require.Len(t, forms, 6)

	require.Equal(t, int64(42), forms[0].(*Int).Value)
	require.Equal(t, "hi", forms[1].(*String).Value)
	require.Equal(t, "sym", forms[2].(*Symbol).Name)
	require.True(t, forms[3].(*Bool).Value)
	require.False(t, forms[4].(*Bool).Value)
	require.IsType(t, &Nil{}, forms[5])
}

func TestReadAllList(t *testing.T) {
	r := NewReader("test.lisp")

	forms, err := r.ReadAll(`(+ 1 2)`)
	require.NoError(t, err)
	require.Len(t, forms, 1)

	list := forms[0].(*List)
	require.Len(t, list.Elements, 3)
	require.Equal(t, "+", list.Elements[0].(*Symbol).Name)
}

func TestReadAllQuoteSugar(t *testing.T) {
	r := NewReader("test.lisp")

	forms, err := r.ReadAll(`'foo`)
	require.NoError(t, err)
	require.Len(t, forms, 1)

	list := forms[0].(*List)
	require.Equal(t, "quote", list.Elements[0].(*Symbol).Name)
	require.Equal(t, "foo", list.Elements[1].(*Symbol).Name)
}

func TestReadAllComment(t *testing.T) {
	r := NewReader("test.lisp")

	forms, err := r.ReadAll("; a comment\n(def x 1)")
	require.NoError(t, err)
	require.Len(t, forms, 1)
}

func TestReadAllUnterminatedList(t *testing.T) {
	r := NewReader("test.lisp")

	_, err := r.ReadAll(`(+ 1 2`)
	require.Error(t, err)
}

func TestSourcePositions(t *testing.T) {
	r := NewReader("test.lisp")

	forms, err := r.ReadAll("(def x\n  42)")
	require.NoError(t, err)

	list := forms[0].(*List)
	require.Equal(t, 1, list.Src.Line)
	inner := list.Elements[2].(*Int)
	require.Equal(t, 2, inner.Src.Line)
}
