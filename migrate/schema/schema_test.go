package schema

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
)

func blogSchema(t *testing.T) *Schema {
	t.Helper()
	b := NewBuilder(Postgres)
	b.AddEnum("public", "Role", "USER", "ADMIN")

	user := b.AddTable("public", "User")
	userID := b.AddColumn(user, Column{Name: "id", Type: ColumnType{Family: FamilyInt}, AutoIncrement: true})
	email := b.AddColumn(user, Column{Name: "email", Type: ColumnType{Family: FamilyString}})
	b.AddColumn(user, Column{Name: "role", Type: ColumnType{Family: FamilyEnum, EnumName: "Role"},
		Default: ValueDefault(LiteralEnumVariant, "USER")})
	b.SetPrimaryKey(user, "User_pkey", userID)
	b.AddIndex(user, "User_email_key", IndexUnique, email)

	post := b.AddTable("public", "Post")
	postID := b.AddColumn(post, Column{Name: "id", Type: ColumnType{Family: FamilyInt}})
	author := b.AddColumn(post, Column{Name: "authorId", Type: ColumnType{Family: FamilyInt, Arity: Nullable}})
	b.SetPrimaryKey(post, "Post_pkey", postID)
	b.AddForeignKey(post, []ColumnID{author}, user, []ColumnID{userID}, SetNull, Cascade, "Post_authorId_fkey")

	s := b.Build()
	require.NoError(t, s.Validate())
	return s
}

func TestWalkers(t *testing.T) {
	s := blogSchema(t)

	user, ok := s.FindTable("public", "User")
	require.True(t, ok)
	assert.Equal(t, "public.User", user.QualifiedName())
	assert.Len(t, user.Columns(), 3)
	assert.Equal(t, []string{"id"}, user.PrimaryKeyColumnNames())
	assert.Len(t, user.SecondaryIndexes(), 1)
	assert.Len(t, user.ReferencingForeignKeys(), 1)

	id, ok := user.Column("id")
	require.True(t, ok)
	assert.True(t, id.IsSinglePrimaryKey())
	assert.True(t, id.IsAutoIncrement())

	role, ok := user.Column("role")
	require.True(t, ok)
	enum, ok := role.Enum()
	require.True(t, ok)
	assert.Equal(t, "Role", enum.Name())
	assert.True(t, enum.HasVariant("ADMIN"))
	assert.Len(t, enum.UsedBy(), 1)

	post, ok := s.FindTable("public", "Post")
	require.True(t, ok)
	fks := post.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "User", fks[0].ReferencedTable().Name())
	assert.Equal(t, []string{"authorId"}, fks[0].ConstrainedColumnNames())
	assert.Equal(t, []string{"id"}, fks[0].ReferencedColumnNames())
}

func TestValidateRejectsBrokenModels(t *testing.T) {
	t.Run("duplicate column", func(t *testing.T) {
		b := NewBuilder(SQLite)
		tbl := b.AddTable("main", "A")
		b.AddColumn(tbl, Column{Name: "x"})
		b.AddColumn(tbl, Column{Name: "x"})
		err := b.Build().Validate()
		require.Error(t, err)
		assert.True(t, enginerr.IsKind(err, enginerr.ValidationError))
		assert.Contains(t, err.Error(), `duplicate column "x"`)
	})

	t.Run("two primary keys", func(t *testing.T) {
		b := NewBuilder(SQLite)
		tbl := b.AddTable("main", "A")
		x := b.AddColumn(tbl, Column{Name: "x"})
		b.SetPrimaryKey(tbl, "a", x)
		b.SetPrimaryKey(tbl, "b", x)
		assert.Error(t, b.Build().Validate())
	})

	t.Run("foreign key to non unique columns", func(t *testing.T) {
		b := NewBuilder(Postgres)
		a := b.AddTable("public", "A")
		ax := b.AddColumn(a, Column{Name: "x"})
		c := b.AddTable("public", "C")
		cx := b.AddColumn(c, Column{Name: "x"})
		b.AddForeignKey(c, []ColumnID{cx}, a, []ColumnID{ax}, NoAction, NoAction, "fk")
		err := b.Build().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not unique")
	})

	t.Run("index column outside table", func(t *testing.T) {
		b := NewBuilder(Postgres)
		a := b.AddTable("public", "A")
		ax := b.AddColumn(a, Column{Name: "x"})
		c := b.AddTable("public", "C")
		b.AddIndex(c, "bad", IndexNormal, ax)
		assert.Error(t, b.Build().Validate())
	})
}

const blogYAML = `
provider: postgresql
enums:
  - name: Role
    values: [USER, ADMIN]
tables:
  - name: User
    columns:
      - {name: id, type: Int, default: autoincrement()}
      - {name: email, type: String, native: VarChar(191)}
      - {name: role, type: Enum, enum: Role, default: USER}
      - {name: createdAt, type: DateTime, default: now()}
      - {name: token, type: String, default: uuid()}
    primaryKey: {columns: [id]}
    indexes:
      - {name: User_email_key, columns: [email], unique: true}
  - name: Post
    columns:
      - {name: id, type: Int}
      - {name: title, type: String, default: "'untitled'"}
      - {name: authorId, type: Int, nullable: true}
    primaryKey: {columns: [id]}
    foreignKeys:
      - {columns: [authorId], referencedTable: User, referencedColumns: [id]}
`

func TestLoadYAMLDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.yaml", []byte(blogYAML), 0o644))

	s, err := LoadFile(fs, "schema.yaml")
	require.NoError(t, err)
	assert.Equal(t, Postgres, s.Dialect)

	user, ok := s.FindTable("public", "User")
	require.True(t, ok)

	id, _ := user.Column("id")
	assert.True(t, id.IsAutoIncrement())
	assert.Nil(t, id.Default())

	email, _ := user.Column("email")
	require.NotNil(t, email.Type().Native)
	assert.Equal(t, "VarChar", email.Type().Native.Name)
	assert.Equal(t, []string{"191"}, email.Type().Native.Args)

	role, _ := user.Column("role")
	require.NotNil(t, role.Default())
	assert.Equal(t, LiteralEnumVariant, role.Default().Value.Kind)

	created, _ := user.Column("createdAt")
	assert.Equal(t, DefaultNow, created.Default().Kind)

	token, _ := user.Column("token")
	assert.Equal(t, "uuid()", token.Column().VirtualDefault)
	assert.Nil(t, token.Default())

	post, _ := s.FindTable("public", "Post")
	fk := post.ForeignKeys()[0]
	assert.Equal(t, SetNull, fk.OnDelete(), "nullable relation defaults to SET NULL")
	assert.Equal(t, Cascade, fk.OnUpdate())
	assert.Equal(t, "Post_authorId_fkey", fk.ConstraintName())
}

func TestSaveAndReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	original := blogSchema(t)

	require.NoError(t, SaveFile(fs, "out/schema.json", original))
	reloaded, err := LoadFile(fs, "out/schema.json")
	require.NoError(t, err)

	assert.Len(t, reloaded.Tables, len(original.Tables))
	assert.Len(t, reloaded.Columns, len(original.Columns))
	assert.Len(t, reloaded.Indexes, len(original.Indexes))
	assert.Len(t, reloaded.ForeignKeys, len(original.ForeignKeys))
	assert.Equal(t, original.Enums, reloaded.Enums)
}

func TestLowerRejectsUnknownReferences(t *testing.T) {
	doc := &Document{
		Provider: "sqlite",
		Tables: []TableDocument{{
			Name:    "Post",
			Columns: []ColumnDocument{{Name: "authorId", Type: "Int"}},
			ForeignKeys: []ForeignKeyDocument{{
				Columns: []string{"authorId"}, ReferencedTable: "User", ReferencedColumns: []string{"id"},
			}},
		}},
	}
	_, err := doc.Lower()
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ValidationError))
}

func TestParseDefault(t *testing.T) {
	tests := []struct {
		in     string
		family ColumnTypeFamily
		kind   DefaultKind
		lit    LiteralKind
		text   string
	}{
		{"now()", FamilyDateTime, DefaultNow, 0, ""},
		{"'it''s'", FamilyString, DefaultValue, LiteralString, "it's"},
		{"42", FamilyInt, DefaultValue, LiteralNumber, "42"},
		{"true", FamilyBoolean, DefaultValue, LiteralBoolean, "true"},
		{"ADMIN", FamilyEnum, DefaultValue, LiteralEnumVariant, "ADMIN"},
		{"'{}'", FamilyJSON, DefaultValue, LiteralJSON, "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDefault(tt.in, tt.family)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Kind)
			if tt.kind == DefaultValue {
				assert.Equal(t, tt.lit, d.Value.Kind)
				assert.Equal(t, tt.text, d.Value.Text)
			}
			assert.Equal(t, tt.in, FormatDefault(d))
		})
	}

	d, err := ParseDefault("dbgenerated(gen_random_uuid())", FamilyUUID)
	require.NoError(t, err)
	assert.Equal(t, "gen_random_uuid()", d.Expression)

	_, err = ParseDefault("whatever", FamilyString)
	assert.Error(t, err)
}
