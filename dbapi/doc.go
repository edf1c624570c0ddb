// Package dbapi exposes the query service through the familiar
// connection and cursor protocol.
//
//	conn, err := dbapi.Connect(token, "https://api.example.com", dbapi.WithTimeout("2m"))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	cur, err := conn.Cursor()
//	if err != nil {
//		return err
//	}
//	if _, err := cur.Execute(ctx, "SELECT * FROM events LIMIT 10"); err != nil {
//		return err
//	}
//	rows, err := cur.FetchAll(ctx)
//
// Every fault returned by this package is a *dberr.Error; match families
// with errors.Is(err, dberr.Operational) and friends.
package dbapi
