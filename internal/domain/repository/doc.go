// Package repository define los tipos de dominio y los contratos de repositorio.
//
// Estas interfaces representan contratos de negocio, independientes del
// backend subyacente (memory, redis, bolt, postgres, sqlite).
//
// Las implementaciones viven en internal/store, que a su vez sólo habla con
// internal/storage (get/set de bytes por key).
//
// Arquitectura:
//
//	┌─────────────────────────────────────────────────────┐
//	│      engine (PublicAPI / AdminAPI)                  │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (tipos + interfaces)       │
//	│   IdentityRepository, SessionRepository, errores    │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│   store (IdentityStore, SessionStore) -> storage    │
//	└─────────────────────────────────────────────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go y se comparan con errors.Is
package repository
