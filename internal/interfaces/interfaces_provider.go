package interfaces

import (
	"github.com/google/wire"

	"collab-server/services/groupchat-api/internal/interfaces/httpserver"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/handlers"
)

// InterfacesProvider provides all interface dependencies.
var InterfacesProvider = wire.NewSet(
	handlers.HandlerProvider,
	httpserver.New,
)
