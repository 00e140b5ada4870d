// Package all registra todos los drivers de storage disponibles.
//
// Uso:
//
//	import _ "github.com/dropDatabas3/keygate/internal/storage/all"
package all

import (
	_ "github.com/dropDatabas3/keygate/internal/storage/bolt"
	_ "github.com/dropDatabas3/keygate/internal/storage/memory"
	_ "github.com/dropDatabas3/keygate/internal/storage/pg"
	_ "github.com/dropDatabas3/keygate/internal/storage/redis"
	_ "github.com/dropDatabas3/keygate/internal/storage/sqlite"
)
