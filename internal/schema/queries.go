package schema

// dialect holds one backend's catalog queries. Postgres and MySQL read
// information_schema; SQLite reads sqlite_master and the table-valued
// pragma functions. An empty schema selects the session's current one.
type dialect struct {
	listTables  string
	tableExists string
	columns     string
	foreignKeys string

	// schemaless backends take no schema argument.
	schemaless bool
}

var pgDialect = dialect{
	listTables: `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`,

	tableExists: `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
			  AND table_name = $2
		)`,

	columns: `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'              AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			COALESCE(pk.is_pk, false)          AS is_primary_key,
			COALESCE(uq.is_unique, false)      AS is_unique
		FROM information_schema.columns c

		-- Primary key check
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
			  AND tc.table_name   = $2
		) pk ON pk.column_name = c.column_name

		-- Unique constraint check
		LEFT JOIN (
			SELECT DISTINCT kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
			  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
			  AND tc.table_name   = $2
		) uq ON uq.column_name = c.column_name

		WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND c.table_name = $2
		ORDER BY c.ordinal_position`,

	foreignKeys: `
		SELECT
			tc.constraint_name,
			kcu.table_name   AS from_table,
			kcu.column_name  AS from_column,
			ccu.table_name   AS to_table,
			ccu.column_name  AS to_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
		ORDER BY tc.constraint_name`,
}

// MySQL: schema = database.
var mysqlDialect = dialect{
	listTables: `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`,

	tableExists: `
		SELECT COUNT(*) > 0
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?`,

	columns: `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'                         AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			(c.column_key = 'PRI')                        AS is_primary_key,
			(c.column_key = 'UNI')                        AS is_unique
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND c.table_name   = ?
		ORDER BY c.ordinal_position`,

	foreignKeys: `
		SELECT
			rc.constraint_name,
			kcu.table_name       AS from_table,
			kcu.column_name      AS from_column,
			kcu.referenced_table_name  AS to_table,
			kcu.referenced_column_name AS to_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE rc.constraint_schema = COALESCE(NULLIF(?, ''), DATABASE())
		ORDER BY rc.constraint_name`,
}

var sqliteDialect = dialect{
	schemaless: true,

	listTables: `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`,

	tableExists: `
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type = 'table' AND name = ?1`,

	columns: `
		SELECT
			p.name,
			p.type,
			p."notnull" = 0 AS is_nullable,
			p.dflt_value,
			NULL            AS max_length,
			p.pk > 0        AS is_primary_key,
			EXISTS (
				SELECT 1
				FROM pragma_index_list(?1) il, pragma_index_info(il.name) ii
				WHERE il."unique" = 1 AND il.origin = 'u' AND ii.name = p.name
			)               AS is_unique
		FROM pragma_table_info(?1) p
		ORDER BY p.cid`,

	foreignKeys: `
		SELECT
			m.name || '_fk_' || f.id || '_' || f.seq,
			m.name,
			f."from",
			f."table",
			f."to"
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table'
		ORDER BY m.name, f.id, f.seq`,
}
