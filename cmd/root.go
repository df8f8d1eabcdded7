package main

func main() {
	root := rootCMD()
	root.AddCommand(serveCMD(), migrateCMD())
	_ = root.Execute()
}
